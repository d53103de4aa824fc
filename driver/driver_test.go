package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct{ name string }

func (s fakeStore) String() string { return s.name }

func (s fakeStore) Open(name string, cfg *Config) (IDB, error) { return nil, nil }

func TestRegister(t *testing.T) {
	Register(fakeStore{name: "fake"})
	assert.Contains(t, ListStores(), "fake")

	s, err := GetStore("fake")
	require.NoError(t, err)
	assert.Equal(t, "fake", s.String())

	assert.Panics(t, func() { Register(fakeStore{name: "fake"}) })
}

func TestOpen_UnknownStore(t *testing.T) {
	_, err := Open("nope", "config", nil)
	assert.Error(t, err)
}
