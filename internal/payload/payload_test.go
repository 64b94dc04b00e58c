package payload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_FullPayload(t *testing.T) {
	raw := `{
		"identity": "https://id.example.com/u1",
		"provider": "google",
		"email": "u1@example.com",
		"nickname": "u1",
		"name": {"first_name": "Ann", "last_name": "Lee"},
		"photo": "https://img.example.com/u1.jpg"
	}`
	p, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "https://id.example.com/u1", p.Identity)
	require.Equal(t, "google", p.Provider)
	require.Equal(t, "u1@example.com", p.Email)
	require.NotNil(t, p.Name)
	require.Equal(t, "Ann", p.Name.FirstName)
	require.Equal(t, "Lee", p.Name.LastName)
}

// Some providers send name as a plain string instead of an object.
func TestParse_NameAsString(t *testing.T) {
	p, err := Parse([]byte(`{"identity":"i1","provider":"twitter","name":"Ann Lee"}`))
	require.NoError(t, err)
	require.NotNil(t, p.Name)
	require.Equal(t, "Ann Lee", p.Name.FullName)
	require.Empty(t, p.Name.FirstName)
}

func TestParse_MissingRequiredFields(t *testing.T) {
	cases := map[string]string{
		"no identity": `{"provider":"google"}`,
		"no provider": `{"identity":"i1"}`,
		"empty":       `{}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"identity":`))
	require.ErrorIs(t, err, ErrInvalid)
}

func TestParse_UnknownFieldsIgnored(t *testing.T) {
	p, err := Parse([]byte(`{"identity":"i1","provider":"openid","dob":"1990-01-01","gender":"x"}`))
	require.NoError(t, err)
	require.Equal(t, "i1", p.Identity)
	require.Nil(t, p.Name)
}
