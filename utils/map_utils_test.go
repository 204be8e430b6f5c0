package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneMap(t *testing.T) {
	assert.Nil(t, CloneMap[string, int](nil))

	m := map[string]int{"a": 1, "b": 2}
	c := CloneMap(m)
	assert.Equal(t, m, c)

	c["c"] = 3
	assert.Len(t, m, 2)
	assert.Len(t, c, 3)
}

func TestSortedKeys(t *testing.T) {
	m := map[int]string{3: "c", 1: "a", 2: "b"}
	assert.Equal(t, []int{1, 2, 3}, SortedKeys(m, func(a, b int) bool { return a < b }))
	assert.Empty(t, SortedKeys(map[int]string{}, func(a, b int) bool { return a < b }))
}

func TestSerialize(t *testing.T) {
	type record struct {
		Name  string
		Count int64
	}
	b, err := Serialize(&record{"push", 7})
	assert.Nil(t, err)

	r := &record{}
	assert.Nil(t, Unserialize(b, r))
	assert.Equal(t, "push", r.Name)
	assert.Equal(t, int64(7), r.Count)
}
