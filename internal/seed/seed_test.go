package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yvasilyev92/AddressBook/internal/schema"
)

func TestLoadFile(t *testing.T) {
	contacts, err := LoadFile("testdata/contacts.cue")
	require.NoError(t, err)
	require.Len(t, contacts, 3)

	assert.Equal(t, schema.Contact{Name: "Ada Lovelace", Phone: "555-1000", Email: "ada@example.com", City: "London"}, contacts[0])
	assert.Equal(t, "75001", contacts[1].Zip)
	assert.Equal(t, "NY", contacts[2].State)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile("testdata/nope.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read seed file")
}

func TestParse_Empty(t *testing.T) {
	contacts, err := Parse("empty.cue", []byte(`contacts: []`))
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing name", `contacts: [{phone: "555"}]`},
		{"empty name", `contacts: [{name: ""}]`},
		{"unknown field", `contacts: [{name: "Ada", nickname: "A"}]`},
		{"non-string field", `contacts: [{name: "Ada", zip: 75001}]`},
		{"not a list", `contacts: {name: "Ada"}`},
		{"syntax error", `contacts: [{name: "Ada"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contacts, err := Parse("bad.cue", []byte(tt.src))
			require.Error(t, err)
			assert.Nil(t, contacts)
		})
	}
}

func TestParse_ErrorHasPosition(t *testing.T) {
	_, err := Parse("bad.cue", []byte("contacts: [\n\t{name: \"Ada\", zip: 75001},\n]\n"))
	require.Error(t, err)

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Pos.IsValid())
	assert.Contains(t, se.Error(), "bad.cue:")
}

type recordingInserter struct {
	got    []schema.Values
	failAt int
}

func (r *recordingInserter) Insert(_ context.Context, v schema.Values) (int64, error) {
	if r.failAt > 0 && len(r.got)+1 == r.failAt {
		return 0, errors.New("WRITE_FAILED")
	}
	r.got = append(r.got, v)
	return int64(len(r.got)), nil
}

func TestImport(t *testing.T) {
	contacts, err := LoadFile("testdata/contacts.cue")
	require.NoError(t, err)

	dst := &recordingInserter{}
	ids, err := Import(context.Background(), dst, contacts)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, schema.Values{"name": "Grace Hopper", "state": "NY"}, dst.got[2])
}

func TestImport_StopsAtFirstFailure(t *testing.T) {
	contacts := []schema.Contact{{Name: "Ada"}, {Name: "Bob"}, {Name: "Cy"}}

	dst := &recordingInserter{failAt: 2}
	ids, err := Import(context.Background(), dst, contacts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `import contact 1 ("Bob")`)
	assert.Equal(t, []int64{1}, ids)
}
