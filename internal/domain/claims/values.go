package claims

import (
	"encoding/json"
	"strings"

	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
)

type Type string

const (
	TypeLegalName     Type = "legal_name"
	TypeLocation      Type = "location"
	TypeEducation     Type = "education"
	TypeRole          Type = "role"
	TypeCertification Type = "certification"
	TypeFinalSummary  Type = "final_summary"
)

// CoreIdentityTypes are folded into the layer-1 snapshot.
var CoreIdentityTypes = []Type{TypeLegalName, TypeLocation, TypeEducation, TypeRole, TypeCertification}

// Value is a typed claim payload. Singletons return GroupSingle from GroupKey.
type Value interface {
	ClaimType() Type
	GroupKey() string
	SchemaVersion() int
}

type LegalNameV1 struct {
	FullName  string `json:"fullName"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

func (LegalNameV1) ClaimType() Type    { return TypeLegalName }
func (LegalNameV1) GroupKey() string   { return GroupSingle }
func (LegalNameV1) SchemaVersion() int { return 1 }

type LocationV1 struct {
	Raw     string `json:"raw"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country,omitempty"`
}

func (LocationV1) ClaimType() Type    { return TypeLocation }
func (LocationV1) GroupKey() string   { return GroupSingle }
func (LocationV1) SchemaVersion() int { return 1 }

type EducationV1 struct {
	School       string `json:"school"`
	Degree       string `json:"degree,omitempty"`
	FieldOfStudy string `json:"fieldOfStudy,omitempty"`
	StartYear    *int   `json:"startYear,omitempty"`
	EndYear      *int   `json:"endYear,omitempty"`
}

func (EducationV1) ClaimType() Type { return TypeEducation }
func (v EducationV1) GroupKey() string {
	return Fingerprint(v.School, v.Degree, v.FieldOfStudy)
}
func (EducationV1) SchemaVersion() int { return 1 }

type RoleV1 struct {
	Title             string `json:"title"`
	Company           string `json:"company"`
	CompanyLinkedinID string `json:"companyLinkedinId,omitempty"`
	StartDate         string `json:"startDate,omitempty"`
	EndDate           string `json:"endDate,omitempty"`
	IsCurrent         bool   `json:"isCurrent"`
	Description       string `json:"description,omitempty"`
}

func (RoleV1) ClaimType() Type { return TypeRole }
func (v RoleV1) GroupKey() string {
	return Fingerprint(v.Company, v.Title, v.StartDate)
}
func (RoleV1) SchemaVersion() int { return 1 }

type CertificationV1 struct {
	Name         string `json:"name"`
	Authority    string `json:"authority,omitempty"`
	IssuedAt     string `json:"issuedAt,omitempty"`
	CredentialID string `json:"credentialId,omitempty"`
}

func (CertificationV1) ClaimType() Type { return TypeCertification }
func (v CertificationV1) GroupKey() string {
	return Fingerprint(v.Name, v.Authority)
}
func (CertificationV1) SchemaVersion() int { return 1 }

type FinalSummaryV1 struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights,omitempty"`
	Model      string   `json:"model,omitempty"`
}

func (FinalSummaryV1) ClaimType() Type    { return TypeFinalSummary }
func (FinalSummaryV1) GroupKey() string   { return GroupSingle }
func (FinalSummaryV1) SchemaVersion() int { return 1 }

// Singleton reports whether at most one instance of t exists per subject.
func Singleton(t Type) bool {
	switch t {
	case TypeLegalName, TypeLocation, TypeFinalSummary:
		return true
	}
	return false
}

// Decode parses raw into the versioned struct registered for t.
func Decode(t Type, raw []byte) (Value, error) {
	var v Value
	switch t {
	case TypeLegalName:
		var x LegalNameV1
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, errors.Wrapf(err, "decode %s", t)
		}
		v = x
	case TypeLocation:
		var x LocationV1
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, errors.Wrapf(err, "decode %s", t)
		}
		v = x
	case TypeEducation:
		var x EducationV1
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, errors.Wrapf(err, "decode %s", t)
		}
		v = x
	case TypeRole:
		var x RoleV1
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, errors.Wrapf(err, "decode %s", t)
		}
		v = x
	case TypeCertification:
		var x CertificationV1
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, errors.Wrapf(err, "decode %s", t)
		}
		v = x
	case TypeFinalSummary:
		var x FinalSummaryV1
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, errors.Wrapf(err, "decode %s", t)
		}
		v = x
	default:
		return nil, errors.Newf("unknown claim type %q", strings.TrimSpace(string(t)))
	}
	return v, nil
}
