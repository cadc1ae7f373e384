package model

import (
	"strconv"
	"strings"
	"time"
)

// PostTypeLab — тип записи лаборатории.
const PostTypeLab = "epfl-lab"

// Ключи метаданных лаборатории.
const (
	MetaUniqueID      = "epfl_unique_id"
	MetaWebsiteURL    = "epfl_lab_website_url"
	MetaDN            = "epfl_dn"
	MetaOU            = "epfl_ou"
	MetaDescriptionFR = "epfl_lab_description_fr"
	MetaDescriptionEN = "epfl_lab_description_en"
	MetaManager       = "epfl_lab_manager"
	MetaMemberCount   = "epfl_lab_member_count"
	MetaPostalAddress = "epfl_lab_postal_address"
	MetaNotALab       = "not_a_lab"
)

// Lab — снимок лаборатории, загруженный из хранилища.
// Методы чтения не обращаются ни к хранилищу, ни к каталогу.
type Lab struct {
	// ID — локальный идентификатор записи (неизменяем)
	ID string
	// UniqueID — uniqueIdentifier подразделения в LDAP, ключ дедупликации
	UniqueID string
	// Name — название (заголовок записи)
	Name string
	// Abbrev — аббревиатура подразделения (атрибут ou)
	Abbrev string
	// DescriptionFR, DescriptionEN — описания на французском и английском
	DescriptionFR string
	DescriptionEN string
	// WebsiteURL — сайт лаборатории
	WebsiteURL string
	// DN — distinguished name подразделения
	DN string
	// ManagerSciper — SCIPER руководителя
	ManagerSciper string
	// PostalAddress — почтовый адрес
	PostalAddress string
	// MemberCountRaw — сохранённое значение численности (может быть пустым)
	MemberCountRaw string
	// NotALabRaw — значение флага not_a_lab, выставляемого редактором
	NotALabRaw string
	// UpdatedAt — время последнего обновления записи
	UpdatedAt time.Time
}

// LabFromPost строит снимок лаборатории из записи хранилища.
func LabFromPost(p *Post) *Lab {
	return &Lab{
		ID:             p.ID,
		UniqueID:       p.MetaValue(MetaUniqueID),
		Name:           p.Title,
		Abbrev:         p.MetaValue(MetaOU),
		DescriptionFR:  p.MetaValue(MetaDescriptionFR),
		DescriptionEN:  p.MetaValue(MetaDescriptionEN),
		WebsiteURL:     p.MetaValue(MetaWebsiteURL),
		DN:             p.MetaValue(MetaDN),
		ManagerSciper:  p.MetaValue(MetaManager),
		PostalAddress:  p.MetaValue(MetaPostalAddress),
		MemberCountRaw: p.MetaValue(MetaMemberCount),
		NotALabRaw:     p.MetaValue(MetaNotALab),
		UpdatedAt:      p.UpdatedAt,
	}
}

// Description возвращает описание на языке lang: "fr" — французское,
// любое другое значение — английское.
func (l *Lab) Description(lang string) string {
	if lang == "fr" {
		return l.DescriptionFR
	}
	return l.DescriptionEN
}

// MemberCount возвращает численность лаборатории или nil, если значение
// отсутствует или не является целым числом. Текст с числовым префиксом
// ("5abc") целым числом не считается и тоже даёт nil.
func (l *Lab) MemberCount() *int {
	s := strings.TrimSpace(l.MemberCountRaw)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

// IsActive — лаборатория активна, если численность не равна нулю.
// Неизвестная численность считается активной.
func (l *Lab) IsActive() bool {
	n := l.MemberCount()
	return n == nil || *n != 0
}

// NotALab сообщает, отмечена ли запись как «не лаборатория».
func (l *Lab) NotALab() bool {
	return IsTruthy(l.NotALabRaw)
}

// IsReal — активная лаборатория без флага not_a_lab.
func (l *Lab) IsReal() bool {
	return l.IsActive() && !l.NotALab()
}

// OrganizationalUnit возвращает подразделение, которому соответствует лаборатория.
func (l *Lab) OrganizationalUnit() *OrganizationalUnit {
	return UnitFromDN(l.DN, l.Abbrev)
}

// IsTruthy — непустое значение, отличное от "0".
func IsTruthy(v string) bool {
	return v != "" && v != "0"
}

// WithMeta возвращает копию снимка с применёнными заголовком и метаданными.
// Исходный снимок не изменяется. Ключи, не относящиеся к лаборатории,
// игнорируются.
func (l *Lab) WithMeta(title string, pairs []MetaPair) Lab {
	out := *l
	out.Name = title
	for _, p := range pairs {
		switch p.Key {
		case MetaUniqueID:
			out.UniqueID = p.Value
		case MetaOU:
			out.Abbrev = p.Value
		case MetaDescriptionFR:
			out.DescriptionFR = p.Value
		case MetaDescriptionEN:
			out.DescriptionEN = p.Value
		case MetaWebsiteURL:
			out.WebsiteURL = p.Value
		case MetaDN:
			out.DN = p.Value
		case MetaManager:
			out.ManagerSciper = p.Value
		case MetaPostalAddress:
			out.PostalAddress = p.Value
		case MetaMemberCount:
			out.MemberCountRaw = p.Value
		case MetaNotALab:
			out.NotALabRaw = p.Value
		}
	}
	return out
}
