package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epfl-sti/epflws/internal/domain/model"
)

func TestPersonService_SyncFromDirectory(t *testing.T) {
	_, persons, store, dir := services(t)
	ctx := context.Background()
	dir.persons["100001"] = &model.DirectoryEntry{
		DN: "uniqueIdentifier=100001,o=epfl,c=ch",
		Attributes: map[string][]string{
			model.AttrCN:   {"Ada Lovelace"},
			model.AttrMail: {"ada.lovelace@epfl.ch"},
		},
	}

	got, err := persons.FindBySciper(ctx, "100001")
	require.NoError(t, err)
	assert.Nil(t, got)

	first, err := persons.SyncFromDirectory(ctx, "100001")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", first.Name)
	assert.Equal(t, "ada.lovelace@epfl.ch", first.Email)

	// Отображаемое имя приоритетнее cn
	dir.persons["100001"].Attributes[model.AttrDisplayName] = []string{"Augusta Ada King"}
	second, err := persons.SyncFromDirectory(ctx, "100001")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err = persons.FindBySciper(ctx, "100001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Augusta Ada King", got.Name)
	assert.Equal(t, "100001", got.Sciper)

	fields, err := store.AutoFields.List(ctx, model.PostTypePerson)
	require.NoError(t, err)
	assert.Equal(t, []string{model.MetaEmail, model.MetaSciper}, fields)
}

func TestPersonService_Errors(t *testing.T) {
	_, persons, _, dir := services(t)
	ctx := context.Background()

	_, err := persons.FindBySciper(ctx, "abc")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = persons.SyncFromDirectory(ctx, "123456789")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = persons.SyncFromDirectory(ctx, "100002")
	assert.ErrorIs(t, err, ErrPersonNotFound)

	dir.err = errLDAPDown
	_, err = persons.SyncFromDirectory(ctx, "100002")
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
}
