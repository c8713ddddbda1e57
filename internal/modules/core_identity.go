package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/claims"
	"github.com/yungbote/talentgraph-backend/internal/domain/documents"
	domainmod "github.com/yungbote/talentgraph-backend/internal/domain/modules"
	"github.com/yungbote/talentgraph-backend/internal/normalization"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
	"github.com/yungbote/talentgraph-backend/internal/services"
)

const coreIdentityConfidence = 0.9

type coreIdentityEnricher struct {
	d   Deps
	log *logger.Logger
}

func NewCoreIdentityEnricher(d Deps) Handler {
	return &coreIdentityEnricher{d: d, log: d.Log.With("module", KeyCoreIdentityEnricher)}
}

func (m *coreIdentityEnricher) Key() string          { return KeyCoreIdentityEnricher }
func (m *coreIdentityEnricher) Version() string      { return "1.0.0" }
func (m *coreIdentityEnricher) Kind() domainmod.Kind { return domainmod.KindEnricher }

func (m *coreIdentityEnricher) Execute(ctx context.Context, run *types.ModuleRun) (Result, error) {
	const op = KeyCoreIdentityEnricher
	person, err := requirePerson(ctx, m.d, run)
	if err != nil {
		return Result{}, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	doc, err := m.d.Documents.GetLatestValid(dbc, types.PersonSubjectOf(run.ProjectID, person.ID),
		documents.SourceLinkedin, documents.KindProfile, services.GetLatestOptions{})
	if err != nil {
		return Result{}, err
	}

	values, err := ExtractCoreIdentity(doc.Payload)
	if err != nil {
		return Result{}, errors.Validation(op, "profile document %s: %v", doc.ID, err)
	}
	docID := doc.ID
	sum, err := m.d.Claims.RecordAll(dbc, run.ProjectID, person.ID, values, services.ClaimMeta{
		Confidence:       coreIdentityConfidence,
		ObservedAt:       doc.CapturedAt,
		SourceDocumentID: &docID,
		ModuleRunID:      runID(run),
	})
	if err != nil {
		return Result{}, err
	}
	counts := map[claims.Type]int{}
	for _, v := range values {
		counts[v.ClaimType()]++
	}
	m.log.Info("Core identity extracted", "module_run_id", run.ID, "values", len(values), "written", sum.Written)
	return Succeeded(map[string]any{
		"documentId": doc.ID,
		"extracted":  counts,
		"written":    sum.Written,
		"unchanged":  sum.Unchanged,
	}), nil
}

// profilePayload covers the field spellings of the profile scrapers we ingest.
type profilePayload struct {
	FullName           string          `json:"fullName"`
	Name               string          `json:"name"`
	FirstName          string          `json:"firstName"`
	LastName           string          `json:"lastName"`
	Location           profileLocation `json:"location"`
	AddressWithCountry string          `json:"addressWithCountry"`
	GeoLocationName    string          `json:"geoLocationName"`

	Experiences []profileRole `json:"experiences"`
	Experience  []profileRole `json:"experience"`
	Positions   []profileRole `json:"positions"`

	Educations []profileEducation `json:"educations"`
	Education  []profileEducation `json:"education"`

	Certifications         []profileCertification `json:"certifications"`
	LicenseAndCertificates []profileCertification `json:"licenseAndCertificates"`
}

type profileLocation struct{ raw string }

func (l *profileLocation) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		l.raw = s
		return nil
	}
	var obj struct {
		LinkedinText string `json:"linkedinText"`
		Text         string `json:"text"`
		Default      string `json:"default"`
	}
	if json.Unmarshal(b, &obj) == nil {
		l.raw = firstNonEmpty(obj.LinkedinText, obj.Text, obj.Default)
	}
	return nil
}

type profileRole struct {
	Title           string   `json:"title"`
	Position        string   `json:"position"`
	CompanyName     string   `json:"companyName"`
	Company         string   `json:"company"`
	CompanyID       flexText `json:"companyId"`
	StartDate       flexDate `json:"startDate"`
	EndDate         flexDate `json:"endDate"`
	JobStartedOn    flexDate `json:"jobStartedOn"`
	JobEndedOn      flexDate `json:"jobEndedOn"`
	IsCurrent       bool     `json:"isCurrent"`
	JobStillWorking bool     `json:"jobStillWorking"`
	Description     string   `json:"description"`
}

type profileEducation struct {
	SchoolName   string   `json:"schoolName"`
	School       string   `json:"school"`
	Title        string   `json:"title"`
	Degree       string   `json:"degree"`
	DegreeName   string   `json:"degreeName"`
	FieldOfStudy string   `json:"fieldOfStudy"`
	StartDate    flexDate `json:"startDate"`
	EndDate      flexDate `json:"endDate"`
	Caption      string   `json:"caption"`
}

type profileCertification struct {
	Name         string   `json:"name"`
	Title        string   `json:"title"`
	Authority    string   `json:"authority"`
	Subtitle     string   `json:"subtitle"`
	IssuedAt     flexDate `json:"issuedAt"`
	CredentialID string   `json:"credentialId"`
}

// flexText accepts a JSON string or number.
type flexText string

func (f *flexText) UnmarshalJSON(b []byte) error {
	var s string
	if json.Unmarshal(b, &s) == nil {
		*f = flexText(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if json.Unmarshal(b, &n) == nil {
		*f = flexText(n.String())
	}
	return nil
}

// flexDate accepts "2019-03", "Mar 2019", a bare year, or {year, month}.
// It keeps the text as "YYYY" or "YYYY-MM" when the year is recognizable.
type flexDate string

var yearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

func (f *flexDate) UnmarshalJSON(b []byte) error {
	var obj struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}
	if json.Unmarshal(b, &obj) == nil && obj.Year > 0 {
		*f = flexDate(formatYM(obj.Year, obj.Month))
		return nil
	}
	var n int
	if json.Unmarshal(b, &n) == nil && n > 0 {
		*f = flexDate(strconv.Itoa(n))
		return nil
	}
	var s string
	if json.Unmarshal(b, &s) != nil {
		return nil
	}
	*f = flexDate(parseDateText(s))
	return nil
}

func formatYM(year, month int) string {
	if month >= 1 && month <= 12 {
		return fmt.Sprintf("%04d-%02d", year, month)
	}
	return strconv.Itoa(year)
}

func parseDateText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "present") {
		return ""
	}
	year := yearRe.FindString(s)
	if year == "" {
		return ""
	}
	y, _ := strconv.Atoi(year)
	lower := strings.ToLower(s)
	if i := strings.Index(lower, year); i >= 0 && len(s) >= i+7 && s[i+4] == '-' {
		if m, err := strconv.Atoi(s[i+5 : i+7]); err == nil {
			return formatYM(y, m)
		}
	}
	for name, m := range monthNames {
		if strings.Contains(lower, name) {
			return formatYM(y, m)
		}
	}
	return formatYM(y, 0)
}

func (f flexDate) year() *int {
	y := yearRe.FindString(string(f))
	if y == "" {
		return nil
	}
	n, _ := strconv.Atoi(y)
	return &n
}

// ExtractCoreIdentity parses a profile document payload into claim values.
// Grouped values repeating a group key within one payload are kept once.
func ExtractCoreIdentity(payload []byte) ([]claims.Value, error) {
	var p profilePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errors.Wrap(err, "decode profile payload")
	}
	var out []claims.Value
	seen := map[string]bool{}
	add := func(v claims.Value) {
		k := string(v.ClaimType()) + "/" + v.GroupKey()
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, v)
	}

	first, last := normalization.Clean(p.FirstName), normalization.Clean(p.LastName)
	full := normalization.Clean(firstNonEmpty(p.FullName, p.Name, strings.TrimSpace(first+" "+last)))
	if full != "" {
		add(claims.LegalNameV1{FullName: full, FirstName: first, LastName: last})
	}

	if loc := normalization.ParseLocation(firstNonEmpty(p.Location.raw, p.AddressWithCountry, p.GeoLocationName)); loc != nil {
		add(claims.LocationV1{Raw: loc.Raw, City: loc.City, Region: loc.Region, Country: loc.Country})
	}

	for _, r := range concat(p.Experiences, p.Experience, p.Positions) {
		title := normalization.Clean(firstNonEmpty(r.Title, r.Position))
		company := normalization.Clean(firstNonEmpty(r.CompanyName, r.Company))
		if title == "" && company == "" {
			continue
		}
		start := string(firstDate(r.StartDate, r.JobStartedOn))
		end := string(firstDate(r.EndDate, r.JobEndedOn))
		add(claims.RoleV1{
			Title:             title,
			Company:           company,
			CompanyLinkedinID: string(r.CompanyID),
			StartDate:         start,
			EndDate:           end,
			IsCurrent:         r.IsCurrent || r.JobStillWorking || (end == "" && start != ""),
			Description:       strings.TrimSpace(r.Description),
		})
	}

	for _, e := range concat(p.Educations, p.Education) {
		school := normalization.Clean(firstNonEmpty(e.SchoolName, e.School, e.Title))
		if school == "" {
			continue
		}
		v := claims.EducationV1{
			School:       school,
			Degree:       normalization.Clean(firstNonEmpty(e.DegreeName, e.Degree)),
			FieldOfStudy: normalization.Clean(e.FieldOfStudy),
			StartYear:    e.StartDate.year(),
			EndYear:      e.EndDate.year(),
		}
		if v.StartYear == nil && v.EndYear == nil && e.Caption != "" {
			years := yearRe.FindAllString(e.Caption, 2)
			if len(years) > 0 {
				v.StartYear = flexDate(years[0]).year()
			}
			if len(years) > 1 {
				v.EndYear = flexDate(years[1]).year()
			}
		}
		add(v)
	}

	for _, c := range concat(p.Certifications, p.LicenseAndCertificates) {
		name := normalization.Clean(firstNonEmpty(c.Name, c.Title))
		if name == "" {
			continue
		}
		add(claims.CertificationV1{
			Name:         name,
			Authority:    normalization.Clean(firstNonEmpty(c.Authority, c.Subtitle)),
			IssuedAt:     string(c.IssuedAt),
			CredentialID: strings.TrimSpace(c.CredentialID),
		})
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstDate(vals ...flexDate) flexDate {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func concat[T any](lists ...[]T) []T {
	var out []T
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
