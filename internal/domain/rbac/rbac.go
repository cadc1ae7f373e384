// Пакет rbac — определение роли пользователя по группам IdP.
// editor может изменять записи (синхронизация, флаги), viewer — только читать.
package rbac

// Роли в порядке возрастания привилегий.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
)

// roleWeight — вес роли для сравнения.
var roleWeight = map[string]int{
	RoleViewer: 1,
	RoleEditor: 2,
}

// maxRole возвращает роль с максимальными привилегиями из двух.
func maxRole(a, b string) string {
	if roleWeight[a] >= roleWeight[b] {
		return a
	}
	return b
}

// HighestRole возвращает максимальную роль из набора.
// Если набор пуст — возвращает пустую строку.
func HighestRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	highest := roles[0]
	for _, r := range roles[1:] {
		highest = maxRole(highest, r)
	}
	return highest
}

// MapGroupsToRole определяет роль по группам пользователя.
// Если ни одна группа не совпала — возвращает пустую строку.
func MapGroupsToRole(groups []string, editorGroups, viewerGroups []string) string {
	editorSet := toSet(editorGroups)
	viewerSet := toSet(viewerGroups)

	var roles []string
	for _, g := range groups {
		if editorSet[g] {
			roles = append(roles, RoleEditor)
		}
		if viewerSet[g] {
			roles = append(roles, RoleViewer)
		}
	}
	return HighestRole(roles)
}

// HasAtLeast сообщает, достаточно ли роли role для требуемой required.
func HasAtLeast(role, required string) bool {
	w, ok := roleWeight[role]
	return ok && w >= roleWeight[required]
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}
