package model

import "strings"

// Атрибуты записей каталога (в нижнем регистре).
const (
	AttrUniqueIdentifier = "uniqueidentifier"
	AttrOU               = "ou"
	AttrDescription      = "description"
	AttrDescriptionEN    = "description;lang-en"
	AttrLabeledURI       = "labeleduri"
	AttrUnitManager      = "unitmanager"
	AttrPostalAddress    = "postaladdress"
	AttrDisplayName      = "displayname"
	AttrCN               = "cn"
	AttrMail             = "mail"
)

// DirectoryEntry — запись каталога LDAP: DN и многозначные атрибуты.
// Имена атрибутов хранятся в нижнем регистре.
type DirectoryEntry struct {
	DN         string
	Attributes map[string][]string
}

// First возвращает первое значение атрибута или пустую строку.
func (e *DirectoryEntry) First(attr string) string {
	vals := e.Attributes[strings.ToLower(attr)]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Has сообщает, есть ли у атрибута хотя бы одно непустое значение.
func (e *DirectoryEntry) Has(attr string) bool {
	return e.First(attr) != ""
}
