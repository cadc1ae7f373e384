package model

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// OrganizationalUnit — подразделение EPFL, выведенное из DN лаборатории.
type OrganizationalUnit struct {
	// Abbrev — аббревиатура подразделения
	Abbrev string
	// DN — distinguished name
	DN string
	// Parents — цепочка родительских ou, от ближайшего к корню
	Parents []string
}

// Parent возвращает ближайшее родительское подразделение или пустую строку.
func (u *OrganizationalUnit) Parent() string {
	if len(u.Parents) == 0 {
		return ""
	}
	return u.Parents[0]
}

// UnitFromDN разбирает DN вида ou=labx,ou=sti,o=epfl,c=ch.
// Некорректный или пустой DN даёт подразделение без родителей.
func UnitFromDN(dn, abbrev string) *OrganizationalUnit {
	unit := &OrganizationalUnit{Abbrev: abbrev, DN: dn}
	if dn == "" {
		return unit
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return unit
	}

	var ous []string
	for _, rdn := range parsed.RDNs {
		for _, attr := range rdn.Attributes {
			if strings.EqualFold(attr.Type, "ou") {
				ous = append(ous, attr.Value)
			}
		}
	}
	if len(ous) == 0 {
		return unit
	}
	if unit.Abbrev == "" {
		unit.Abbrev = ous[0]
	}
	unit.Parents = ous[1:]
	return unit
}
