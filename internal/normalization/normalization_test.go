package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

func TestNormalizeProfileURL(t *testing.T) {
	ok := map[string]string{
		"https://www.linkedin.com/in/Jane-Doe/":            "https://linkedin.com/in/jane-doe",
		"http://linkedin.com/in/jane-doe?trk=abc#x":        "https://linkedin.com/in/jane-doe",
		"linkedin.com/in/jane-doe":                         "https://linkedin.com/in/jane-doe",
		"  HTTPS://UK.LINKEDIN.COM/in/jane-doe  ":          "https://linkedin.com/in/jane-doe",
		"https://www.linkedin.com/in/jane-doe-12345678/?a": "https://linkedin.com/in/jane-doe-12345678",
	}
	for in, want := range ok {
		got, err := NormalizeProfileURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := NormalizeProfileURL("")
	assert.True(t, errors.Is(err, ErrMissingProfile))
	for _, bad := range []string{
		"https://linkedin.com/company/acme",
		"https://example.com/in/jane",
		"https://linkedin.com/in/",
		"https://linkedin.com/in/jane/details/experience",
	} {
		_, err := NormalizeProfileURL(bad)
		assert.True(t, errors.Is(err, ErrInvalidProfile), bad)
	}
}

func TestProfileRef(t *testing.T) {
	got, err := ProfileRef("urn:li:fsd_profile:ACoAAB123")
	require.NoError(t, err)
	assert.Equal(t, "https://linkedin.com/in/acoaab123", got)

	got, err = ProfileRef("jane-doe")
	require.NoError(t, err)
	assert.Equal(t, "https://linkedin.com/in/jane-doe", got)
	assert.Equal(t, "jane-doe", PublicIdentifier(got))
}

func TestParseLocation(t *testing.T) {
	l := ParseLocation("San Francisco, California, United States")
	require.NotNil(t, l)
	assert.Equal(t, "San Francisco", l.City)
	assert.Equal(t, "California", l.Region)
	assert.Equal(t, "United States", l.Country)
	assert.Equal(t, "united states|california|san francisco", l.Key())

	l = ParseLocation("Berlin,  Germany")
	assert.Equal(t, "germany||berlin", l.Key())

	l = ParseLocation("Greater London Area")
	assert.Equal(t, "|greater london area|", l.Key())

	assert.Nil(t, ParseLocation("   "))
}

func TestOrganizationHelpers(t *testing.T) {
	assert.Equal(t, "acme.com", Domain("https://www.Acme.com/about"))
	assert.Equal(t, "acme.io", Domain("acme.io"))
	assert.Equal(t, "", Domain("https://www.linkedin.com/company/acme"))
	assert.Equal(t, "", Domain("localhost"))

	assert.Equal(t, "acme", CompanyIDFromURL("https://www.linkedin.com/company/Acme/?x=1"))
	assert.Equal(t, "", CompanyIDFromURL("https://acme.com"))

	assert.Equal(t, "acme corp|germany||berlin", OrganizationNameKey("  ACME   Corp ", "germany||berlin"))
}
