package model

// PostTypePerson — тип записи сотрудника.
const PostTypePerson = "epfl-person"

// Ключи метаданных сотрудника.
const (
	MetaSciper = "epfl_sciper"
	MetaEmail  = "epfl_email"
)

// Person — сотрудник EPFL, идентифицируемый по SCIPER.
type Person struct {
	// ID — локальный идентификатор записи
	ID string
	// Sciper — персональный номер EPFL
	Sciper string
	// Name — отображаемое имя
	Name string
	// Email — адрес электронной почты
	Email string
}

// PersonFromPost строит сотрудника из записи хранилища.
func PersonFromPost(p *Post) *Person {
	return &Person{
		ID:     p.ID,
		Sciper: p.MetaValue(MetaSciper),
		Name:   p.Title,
		Email:  p.MetaValue(MetaEmail),
	}
}
