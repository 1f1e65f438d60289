package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/petmatch/internal/apperr"
	"github.com/timmy/petmatch/internal/domain"
)

func TestAnimalServiceGetMalformedID(t *testing.T) {
	store := &fakeStore{}
	svc := NewAnimalService(store)

	_, err := svc.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Zero(t, store.getCalls)

	_, err = svc.Get(context.Background(), "3f1c2a4e-9a51-4d3b-8f7e-2c6d1b0a9e11")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 1, store.getCalls)
}

func TestAnimalServiceList(t *testing.T) {
	store := &fakeStore{}
	svc := NewAnimalService(store)

	status := domain.StatusFound
	_, err := svc.List(context.Background(), &status, 20)
	require.NoError(t, err)
	require.NotNil(t, store.listFilter)
	assert.Equal(t, &status, store.listFilter.Status)
	assert.Equal(t, 20, store.listFilter.Limit)

	bad := domain.Status("stolen")
	_, err = svc.List(context.Background(), &bad, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestParseFields(t *testing.T) {
	v, err := ParseFloatField("lat", " -23.5 ")
	require.NoError(t, err)
	assert.Equal(t, -23.5, *v)

	v, err = ParseFloatField("lat", "")
	require.NoError(t, err)
	assert.Nil(t, v)

	for _, raw := range []string{"abc", "NaN", "Inf"} {
		_, err = ParseFloatField("lat", raw)
		assert.ErrorIs(t, err, apperr.ErrValidation, raw)
	}

	n, err := ParseIntField("topK", "7")
	require.NoError(t, err)
	assert.Equal(t, 7, *n)

	_, err = ParseIntField("topK", "7.5")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
