package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/talentgraph-backend/internal/domain/claims"
)

func valuesByType(vals []claims.Value) map[claims.Type][]claims.Value {
	out := map[claims.Type][]claims.Value{}
	for _, v := range vals {
		out[v.ClaimType()] = append(out[v.ClaimType()], v)
	}
	return out
}

func TestExtractCoreIdentityProfileShape(t *testing.T) {
	payload := []byte(`{
	  "firstName": "Jane", "lastName": "Doe",
	  "location": {"linkedinText": "Austin, Texas, United States"},
	  "experience": [
	    {"position": "CTO", "companyName": "Acme", "companyId": 42, "startDate": {"year": 2021, "month": 3}},
	    {"position": "CTO", "companyName": "Acme", "companyId": 42, "startDate": {"year": 2021, "month": 3}},
	    {"title": "Engineer", "company": "Initech", "startDate": "Jan 2015", "endDate": "2020-12"}
	  ],
	  "education": [{"schoolName": "UT Austin", "degree": "BS", "fieldOfStudy": "CS", "startDate": {"year": 2010}, "endDate": {"year": 2014}}],
	  "certifications": [{"name": "CKA", "authority": "CNCF", "issuedAt": "Jun 2022"}]
	}`)
	vals, err := ExtractCoreIdentity(payload)
	require.NoError(t, err)
	by := valuesByType(vals)

	require.Len(t, by[claims.TypeLegalName], 1)
	assert.Equal(t, claims.LegalNameV1{FullName: "Jane Doe", FirstName: "Jane", LastName: "Doe"}, by[claims.TypeLegalName][0])

	require.Len(t, by[claims.TypeLocation], 1)
	loc := by[claims.TypeLocation][0].(claims.LocationV1)
	assert.Equal(t, "Austin", loc.City)
	assert.Equal(t, "Texas", loc.Region)
	assert.Equal(t, "United States", loc.Country)

	require.Len(t, by[claims.TypeRole], 2)
	cto := by[claims.TypeRole][0].(claims.RoleV1)
	assert.Equal(t, "2021-03", cto.StartDate)
	assert.Equal(t, "42", cto.CompanyLinkedinID)
	assert.True(t, cto.IsCurrent)
	eng := by[claims.TypeRole][1].(claims.RoleV1)
	assert.Equal(t, "2015-01", eng.StartDate)
	assert.Equal(t, "2020-12", eng.EndDate)
	assert.False(t, eng.IsCurrent)

	require.Len(t, by[claims.TypeEducation], 1)
	edu := by[claims.TypeEducation][0].(claims.EducationV1)
	require.NotNil(t, edu.StartYear)
	assert.Equal(t, 2010, *edu.StartYear)
	assert.Equal(t, 2014, *edu.EndYear)

	require.Len(t, by[claims.TypeCertification], 1)
	assert.Equal(t, "2022-06", by[claims.TypeCertification][0].(claims.CertificationV1).IssuedAt)
}

func TestExtractCoreIdentityAlternateShape(t *testing.T) {
	payload := []byte(`{
	  "fullName": "  John   Roe ",
	  "addressWithCountry": "Berlin, Germany",
	  "experiences": [{"title": "Founder", "companyName": "Roe GmbH", "jobStartedOn": "2019", "jobStillWorking": true}],
	  "educations": [{"title": "TU Berlin", "caption": "2008 - 2012"}],
	  "licenseAndCertificates": [{"title": "PMP", "subtitle": "PMI"}]
	}`)
	vals, err := ExtractCoreIdentity(payload)
	require.NoError(t, err)
	by := valuesByType(vals)

	assert.Equal(t, "John Roe", by[claims.TypeLegalName][0].(claims.LegalNameV1).FullName)
	loc := by[claims.TypeLocation][0].(claims.LocationV1)
	assert.Equal(t, "Berlin", loc.City)
	assert.Equal(t, "Germany", loc.Country)
	role := by[claims.TypeRole][0].(claims.RoleV1)
	assert.Equal(t, "2019", role.StartDate)
	assert.True(t, role.IsCurrent)
	edu := by[claims.TypeEducation][0].(claims.EducationV1)
	assert.Equal(t, 2008, *edu.StartYear)
	assert.Equal(t, 2012, *edu.EndYear)
	assert.Equal(t, "PMI", by[claims.TypeCertification][0].(claims.CertificationV1).Authority)
}

func TestExtractCoreIdentityEmptyAndInvalid(t *testing.T) {
	vals, err := ExtractCoreIdentity([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, vals)

	_, err = ExtractCoreIdentity([]byte(`not json`))
	assert.Error(t, err)
}
