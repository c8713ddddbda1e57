package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/talentgraph-backend/internal/data/aggregates"
	"github.com/yungbote/talentgraph-backend/internal/data/graph"
	"github.com/yungbote/talentgraph-backend/internal/data/repos"
	types "github.com/yungbote/talentgraph-backend/internal/domain"
	"github.com/yungbote/talentgraph-backend/internal/domain/documents"
	"github.com/yungbote/talentgraph-backend/internal/domain/entities"
	"github.com/yungbote/talentgraph-backend/internal/normalization"
	"github.com/yungbote/talentgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

// ReasonMissingProfileIdentifier marks fanout items skipped before any write.
const ReasonMissingProfileIdentifier = "missing_profile_identifier"

type FanoutFailure struct {
	ItemIndex   int         `json:"itemIndex"`
	LinkedinURL string      `json:"linkedinUrl,omitempty"`
	Code        errors.Code `json:"code"`
	Message     string      `json:"message"`
}

type FanoutSummary struct {
	ItemsProcessed                 int             `json:"itemsProcessed"`
	PersonsUpserted                int             `json:"personsUpserted"`
	OrganizationsUpserted          int             `json:"organizationsUpserted"`
	LocationsUpserted              int             `json:"locationsUpserted"`
	LinksCreated                   int             `json:"linksCreated"`
	SnapshotsInserted              int             `json:"snapshotsInserted"`
	ItemsSkippedMissingLinkedinURL int             `json:"itemsSkippedMissingLinkedinUrl"`
	ItemsFailed                    int             `json:"itemsFailed"`
	Failures                       []FanoutFailure `json:"failures"`
}

// Err reports a partial batch failure when any item failed.
func (s *FanoutSummary) Err() error {
	if s == nil || s.ItemsFailed == 0 {
		return nil
	}
	return errors.PartialBatchFailure("fanout", s.ItemsFailed, s.ItemsProcessed)
}

// GraphProjector mirrors resolved people into a graph store.
type GraphProjector interface {
	ProjectPeople(ctx context.Context, projectID uuid.UUID, people []graph.PersonNode) error
}

type EntityResolutionService interface {
	// FanoutSearchResults processes each item in its own transaction. Item
	// failures are recorded and counted, never returned.
	FanoutSearchResults(ctx context.Context, run *types.ModuleRun, batch *types.Document, items []json.RawMessage) *FanoutSummary
	// ResolvePersonByProfile returns the person for a profile URL, URN or
	// public identifier, creating it and attaching it to the project as needed.
	ResolvePersonByProfile(dbc dbctx.Context, projectID uuid.UUID, ref string, source string) (*types.Person, bool, error)
}

type entityResolutionService struct {
	db        *gorm.DB
	log       *logger.Logger
	tx        aggregates.TxRunner
	persons   repos.PersonRepo
	links     repos.PersonProjectRepo
	orgs      repos.OrganizationRepo
	locations repos.LocationRepo
	items     repos.DiscoveryRunItemRepo
	docs      DocumentService
	graph     GraphProjector
}

func NewEntityResolutionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	rs repos.Set,
	docs DocumentService,
	projector GraphProjector,
) EntityResolutionService {
	return &entityResolutionService{
		db:        db,
		log:       baseLog.With("service", "EntityResolutionService"),
		tx:        aggregates.NewGormTxRunner(db),
		persons:   rs.Person,
		links:     rs.PersonProject,
		orgs:      rs.Organization,
		locations: rs.Location,
		items:     rs.DiscoveryRunItem,
		docs:      docs,
		graph:     projector,
	}
}

// searchItem is the union of the people-search result shapes we accept.
type searchItem struct {
	LinkedinURL        string          `json:"linkedinUrl"`
	ProfileURL         string          `json:"profileUrl"`
	URL                string          `json:"url"`
	PublicIdentifier   string          `json:"publicIdentifier"`
	FullName           string          `json:"fullName"`
	FirstName          string          `json:"firstName"`
	LastName           string          `json:"lastName"`
	Headline           string          `json:"headline"`
	Location           flexLocation    `json:"location"`
	PictureURL         string          `json:"pictureUrl"`
	ProfilePicture     string          `json:"profilePicture"`
	CompanyName        string          `json:"companyName"`
	CompanyID          flexString      `json:"companyId"`
	CompanyLinkedinURL string          `json:"companyLinkedinUrl"`
	CompanyWebsite     string          `json:"companyWebsite"`
	CompanyDomain      string          `json:"companyDomain"`
	CompanyIndustry    string          `json:"companyIndustry"`
	CompanyLocation    string          `json:"companyLocation"`
	CurrentPositions   []searchCompany `json:"currentPositions"`
}

type searchCompany struct {
	CompanyName        string     `json:"companyName"`
	CompanyID          flexString `json:"companyId"`
	CompanyLinkedinURL string     `json:"companyLinkedinUrl"`
	CompanyWebsite     string     `json:"companyWebsite"`
	CompanyDomain      string     `json:"companyDomain"`
	Industry           string     `json:"industry"`
	Location           string     `json:"location"`
	Title              string     `json:"title"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return nil
	}
	*f = flexString(n.String())
	return nil
}

// flexLocation accepts a plain string or {linkedinText|text, parsed:{city,state,country}}.
type flexLocation struct {
	Raw     string
	City    string
	Region  string
	Country string
}

func (f *flexLocation) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		f.Raw = s
		return nil
	}
	var obj struct {
		LinkedinText string `json:"linkedinText"`
		Text         string `json:"text"`
		Parsed       struct {
			City    string `json:"city"`
			State   string `json:"state"`
			Country string `json:"country"`
		} `json:"parsed"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil
	}
	f.Raw = obj.LinkedinText
	if f.Raw == "" {
		f.Raw = obj.Text
	}
	f.City, f.Region, f.Country = obj.Parsed.City, obj.Parsed.State, obj.Parsed.Country
	return nil
}

func (l flexLocation) parts() *normalization.LocationParts {
	if l.City != "" || l.Region != "" || l.Country != "" {
		raw := l.Raw
		if normalization.Clean(raw) == "" {
			raw = strings.Join(nonEmpty(l.City, l.Region, l.Country), ", ")
		}
		return &normalization.LocationParts{
			Raw:     normalization.Clean(raw),
			City:    normalization.Clean(l.City),
			Region:  normalization.Clean(l.Region),
			Country: normalization.Clean(l.Country),
		}
	}
	return normalization.ParseLocation(l.Raw)
}

func (it searchItem) profileRef() string {
	for _, s := range []string{it.LinkedinURL, it.ProfileURL, it.URL} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	if strings.TrimSpace(it.PublicIdentifier) != "" {
		return "https://linkedin.com/in/" + strings.TrimSpace(it.PublicIdentifier)
	}
	return ""
}

func (it searchItem) company() *searchCompany {
	if len(it.CurrentPositions) > 0 && strings.TrimSpace(it.CurrentPositions[0].CompanyName) != "" {
		c := it.CurrentPositions[0]
		return &c
	}
	if strings.TrimSpace(it.CompanyName) == "" {
		return nil
	}
	return &searchCompany{
		CompanyName:        it.CompanyName,
		CompanyID:          it.CompanyID,
		CompanyLinkedinURL: it.CompanyLinkedinURL,
		CompanyWebsite:     it.CompanyWebsite,
		CompanyDomain:      it.CompanyDomain,
		Industry:           it.CompanyIndustry,
		Location:           it.CompanyLocation,
	}
}

func nonEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = normalization.Clean(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type itemOutcome struct {
	personUpserted bool
	orgUpserted    bool
	locUpserted    bool
	linkCreated    bool
	snapshot       bool
	node           graph.PersonNode
}

func (s *entityResolutionService) FanoutSearchResults(ctx context.Context, run *types.ModuleRun, batch *types.Document, items []json.RawMessage) *FanoutSummary {
	sum := &FanoutSummary{Failures: []FanoutFailure{}}
	if run == nil {
		return sum
	}
	log := s.log.With("module_run_id", run.ID, "project_id", run.ProjectID)
	nodes := make([]graph.PersonNode, 0, len(items))

	for idx, raw := range items {
		sum.ItemsProcessed++
		var it searchItem
		if err := json.Unmarshal(raw, &it); err != nil {
			s.recordFailure(ctx, sum, run, idx, "", errors.Validation("fanout.item", "malformed item: %v", err), false)
			continue
		}
		profileURL, err := normalization.NormalizeProfileURL(it.profileRef())
		if err != nil {
			s.recordFailure(ctx, sum, run, idx, it.profileRef(),
				errors.NewError(errors.CodeValidation, "fanout.item", ReasonMissingProfileIdentifier, err), true)
			continue
		}

		var out itemOutcome
		err = s.processItem(ctx, func(dbc dbctx.Context) error {
			o, err := s.upsertItem(dbc, run, batch, idx, profileURL, it, raw)
			out = o
			return err
		})
		if err != nil {
			s.recordFailure(ctx, sum, run, idx, profileURL, err, false)
			log.Warn("Fanout item failed", "item_index", idx, "error", err)
			continue
		}
		if out.personUpserted {
			sum.PersonsUpserted++
		}
		if out.orgUpserted {
			sum.OrganizationsUpserted++
		}
		if out.locUpserted {
			sum.LocationsUpserted++
		}
		if out.linkCreated {
			sum.LinksCreated++
		}
		if out.snapshot {
			sum.SnapshotsInserted++
		}
		nodes = append(nodes, out.node)
	}

	if s.graph != nil && len(nodes) > 0 {
		if err := s.graph.ProjectPeople(ctx, run.ProjectID, nodes); err != nil {
			log.Warn("Graph projection failed", "error", err, "people", len(nodes))
		}
	}
	log.Info("Fanout finished",
		"items", sum.ItemsProcessed,
		"persons", sum.PersonsUpserted,
		"skipped", sum.ItemsSkippedMissingLinkedinURL,
		"failed", sum.ItemsFailed,
	)
	return sum
}

// processItem runs fn in its own transaction and converts a panic into an error.
func (s *entityResolutionService) processItem(ctx context.Context, fn func(dbc dbctx.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewError(errors.CodeInternal, "fanout.item", fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return s.tx.InTx(ctx, fn)
}

func (s *entityResolutionService) recordFailure(ctx context.Context, sum *FanoutSummary, run *types.ModuleRun, idx int, profileURL string, cause error, skipped bool) {
	status := entities.DiscoveryItemFailed
	if skipped {
		status = entities.DiscoveryItemSkipped
		sum.ItemsSkippedMissingLinkedinURL++
	} else {
		sum.ItemsFailed++
		p := errors.ToPayload(cause)
		sum.Failures = append(sum.Failures, FanoutFailure{
			ItemIndex:   idx,
			LinkedinURL: profileURL,
			Code:        p.Code,
			Message:     p.Message,
		})
	}
	row := &types.DiscoveryRunItem{
		ModuleRunID: run.ID,
		ProjectID:   run.ProjectID,
		ItemIndex:   idx,
		LinkedinURL: normalization.Ptr(profileURL),
		Status:      status,
		ErrorJSON:   errors.JSON(cause),
	}
	if _, err := s.items.Create(dbctx.New(ctx), row); err != nil {
		s.log.Warn("Discovery item write failed", "module_run_id", run.ID, "item_index", idx, "error", err)
	}
}

func (s *entityResolutionService) upsertItem(
	dbc dbctx.Context,
	run *types.ModuleRun,
	batch *types.Document,
	idx int,
	profileURL string,
	it searchItem,
	raw json.RawMessage,
) (itemOutcome, error) {
	var out itemOutcome

	person, _, err := s.resolvePerson(dbc, profileURL)
	if err != nil {
		return out, err
	}

	var loc *types.Location
	if parts := it.Location.parts(); parts != nil {
		loc, err = s.upsertLocation(dbc, parts)
		if err != nil {
			return out, err
		}
		out.locUpserted = loc != nil
	}

	var org *types.Organization
	if c := it.company(); c != nil {
		org, err = s.upsertOrganization(dbc, c)
		if err != nil {
			return out, err
		}
		out.orgUpserted = org != nil
	}

	fullName := normalization.Clean(it.FullName)
	if fullName == "" {
		fullName = strings.Join(nonEmpty(it.FirstName, it.LastName), " ")
	}
	picture := it.PictureURL
	if picture == "" {
		picture = it.ProfilePicture
	}
	fill := personFill{
		PublicIdentifier:  normalization.PublicIdentifier(profileURL),
		FullName:          fullName,
		FirstName:         it.FirstName,
		LastName:          it.LastName,
		Headline:          it.Headline,
		ProfilePictureURL: picture,
	}
	if loc != nil {
		fill.LocationID = &loc.ID
	}
	if org != nil {
		fill.CurrentOrganizationID = &org.ID
	}
	if err := s.mergePerson(dbc, person, fill); err != nil {
		return out, err
	}
	out.personUpserted = true

	created, err := s.ensureLink(dbc, run.ProjectID, person.ID, entities.PersonSourcePeopleSearch, &run.ID)
	if err != nil {
		return out, err
	}
	out.linkCreated = created

	sourceRef := ""
	if batch != nil {
		sourceRef = batch.ID.String()
	}
	doc, _, err := s.docs.CreateAndSupersede(dbc, NewDocument{
		Subject:     types.PersonSubjectOf(run.ProjectID, person.ID),
		Source:      documents.SourceApify,
		Kind:        documents.KindPeopleSearchItem,
		SourceRef:   sourceRef,
		CapturedAt:  time.Now(),
		ModuleRunID: &run.ID,
		Payload:     raw,
	})
	if err != nil {
		return out, err
	}
	out.snapshot = true

	if _, err := s.items.Create(dbc, &types.DiscoveryRunItem{
		ModuleRunID: run.ID,
		ProjectID:   run.ProjectID,
		ItemIndex:   idx,
		PersonID:    &person.ID,
		LinkedinURL: &profileURL,
		Status:      entities.DiscoveryItemCreated,
		DocumentID:  &doc.ID,
	}); err != nil {
		return out, errors.MapDBError("fanout.item", err)
	}

	out.node = graph.PersonNode{
		PersonID:    person.ID,
		LinkedinURL: profileURL,
		FullName:    fullName,
	}
	if org != nil {
		out.node.OrganizationID = &org.ID
		out.node.OrganizationName = org.Name
	}
	if loc != nil {
		out.node.LocationID = &loc.ID
		out.node.LocationKey = loc.Key
	}
	return out, nil
}

// resolvePerson finds or creates the person for a normalized profile URL.
// A concurrent insert of the same URL resolves to the winner's row.
func (s *entityResolutionService) resolvePerson(dbc dbctx.Context, profileURL string) (*types.Person, bool, error) {
	const op = "entities.ResolvePerson"
	p, err := s.persons.GetByLinkedinURL(dbc, profileURL)
	if err != nil {
		return nil, false, errors.MapDBError(op, err)
	}
	if p != nil {
		return p, false, nil
	}
	p = &types.Person{ID: uuid.New(), LinkedinURL: profileURL}
	created, err := s.persons.CreateIfAbsent(dbc, p)
	if err != nil {
		return nil, false, errors.MapDBError(op, err)
	}
	if created {
		return p, true, nil
	}
	p, err = s.persons.GetByLinkedinURL(dbc, profileURL)
	if err != nil {
		return nil, false, errors.MapDBError(op, err)
	}
	if p == nil {
		return nil, false, errors.NewError(errors.CodeConflict, op, "person vanished after conflict", nil)
	}
	return p, false, nil
}

type personFill struct {
	PublicIdentifier      string
	FullName              string
	FirstName             string
	LastName              string
	Headline              string
	ProfilePictureURL     string
	LocationID            *uuid.UUID
	CurrentOrganizationID *uuid.UUID
}

// mergePerson fills only attributes that are still null.
func (s *entityResolutionService) mergePerson(dbc dbctx.Context, p *types.Person, f personFill) error {
	updates := map[string]interface{}{}
	setStr := func(col string, cur **string, val string) {
		if *cur != nil {
			return
		}
		if v := normalization.Ptr(val); v != nil {
			updates[col] = *v
			*cur = v
		}
	}
	setStr("public_identifier", &p.PublicIdentifier, f.PublicIdentifier)
	setStr("full_name", &p.FullName, f.FullName)
	setStr("first_name", &p.FirstName, f.FirstName)
	setStr("last_name", &p.LastName, f.LastName)
	setStr("headline", &p.Headline, f.Headline)
	setStr("profile_picture_url", &p.ProfilePictureURL, f.ProfilePictureURL)
	if p.LocationID == nil && f.LocationID != nil {
		updates["location_id"] = *f.LocationID
		p.LocationID = f.LocationID
	}
	if p.CurrentOrganizationID == nil && f.CurrentOrganizationID != nil {
		updates["current_organization_id"] = *f.CurrentOrganizationID
		p.CurrentOrganizationID = f.CurrentOrganizationID
	}
	if len(updates) == 0 {
		return nil
	}
	if err := s.persons.UpdateFields(dbc, p.ID, updates); err != nil {
		return errors.MapDBError("entities.MergePerson", err)
	}
	return nil
}

func (s *entityResolutionService) upsertLocation(dbc dbctx.Context, parts *normalization.LocationParts) (*types.Location, error) {
	const op = "entities.UpsertLocation"
	key := parts.Key()
	if key == "||" {
		return nil, nil
	}
	loc, err := s.locations.GetByKey(dbc, key)
	if err != nil {
		return nil, errors.MapDBError(op, err)
	}
	if loc != nil {
		return loc, nil
	}
	loc = &types.Location{
		ID:      uuid.New(),
		Key:     key,
		City:    normalization.Ptr(parts.City),
		Region:  normalization.Ptr(parts.Region),
		Country: normalization.Ptr(parts.Country),
		Raw:     parts.Raw,
	}
	created, err := s.locations.CreateIfAbsent(dbc, loc)
	if err != nil {
		return nil, errors.MapDBError(op, err)
	}
	if created {
		return loc, nil
	}
	loc, err = s.locations.GetByKey(dbc, key)
	if err != nil {
		return nil, errors.MapDBError(op, err)
	}
	return loc, nil
}

// upsertOrganization resolves by LinkedIn company id, then domain, then
// name plus location, and fills null attributes of the match.
func (s *entityResolutionService) upsertOrganization(dbc dbctx.Context, c *searchCompany) (*types.Organization, error) {
	const op = "entities.UpsertOrganization"
	name := normalization.Clean(c.CompanyName)
	if name == "" {
		return nil, nil
	}
	companyID := strings.ToLower(strings.TrimSpace(string(c.CompanyID)))
	if companyID == "" {
		companyID = normalization.CompanyIDFromURL(c.CompanyLinkedinURL)
	}
	domain := normalization.Domain(c.CompanyDomain)
	if domain == "" {
		domain = normalization.Domain(c.CompanyWebsite)
	}

	var loc *types.Location
	if parts := normalization.ParseLocation(c.Location); parts != nil {
		var err error
		if loc, err = s.upsertLocation(dbc, parts); err != nil {
			return nil, err
		}
	}
	locKey := ""
	if loc != nil {
		locKey = loc.Key
	}
	nameKey := normalization.OrganizationNameKey(name, locKey)

	org, err := s.findOrganization(dbc, companyID, domain, nameKey)
	if err != nil {
		return nil, errors.MapDBError(op, err)
	}
	if org == nil {
		org = &types.Organization{
			ID:                uuid.New(),
			LinkedinCompanyID: normalization.Ptr(companyID),
			Domain:            normalization.Ptr(domain),
			Name:              name,
			NameKey:           nameKey,
			LinkedinURL:       normalization.Ptr(c.CompanyLinkedinURL),
			Industry:          normalization.Ptr(c.Industry),
		}
		if loc != nil {
			org.LocationID = &loc.ID
		}
		created, err := s.orgs.CreateIfAbsent(dbc, org)
		if err != nil {
			return nil, errors.MapDBError(op, err)
		}
		if created {
			return org, nil
		}
		if org, err = s.orgs.GetByLinkedinCompanyID(dbc, companyID); err != nil {
			return nil, errors.MapDBError(op, err)
		}
		return org, nil
	}

	updates := map[string]interface{}{}
	if org.LinkedinCompanyID == nil && companyID != "" {
		if other, err := s.orgs.GetByLinkedinCompanyID(dbc, companyID); err == nil && other == nil {
			updates["linkedin_company_id"] = companyID
			org.LinkedinCompanyID = &companyID
		}
	}
	if org.Domain == nil && domain != "" {
		updates["domain"] = domain
		org.Domain = &domain
	}
	if v := normalization.Ptr(c.CompanyLinkedinURL); org.LinkedinURL == nil && v != nil {
		updates["linkedin_url"] = *v
		org.LinkedinURL = v
	}
	if v := normalization.Ptr(c.Industry); org.Industry == nil && v != nil {
		updates["industry"] = *v
		org.Industry = v
	}
	if org.LocationID == nil && loc != nil {
		updates["location_id"] = loc.ID
		org.LocationID = &loc.ID
	}
	if len(updates) > 0 {
		if err := s.orgs.UpdateFields(dbc, org.ID, updates); err != nil {
			return nil, errors.MapDBError(op, err)
		}
	}
	return org, nil
}

func (s *entityResolutionService) findOrganization(dbc dbctx.Context, companyID, domain, nameKey string) (*types.Organization, error) {
	if companyID != "" {
		if org, err := s.orgs.GetByLinkedinCompanyID(dbc, companyID); err != nil || org != nil {
			return org, err
		}
	}
	if domain != "" {
		if org, err := s.orgs.GetByDomain(dbc, domain); err != nil || org != nil {
			return org, err
		}
	}
	return s.orgs.GetByNameKey(dbc, nameKey)
}

// ensureLink creates the person/project association; an existing row counts
// as success.
func (s *entityResolutionService) ensureLink(dbc dbctx.Context, projectID, personID uuid.UUID, source string, moduleRunID *uuid.UUID) (bool, error) {
	created, err := s.links.CreateIfAbsent(dbc, &types.PersonProject{
		PersonID:    personID,
		ProjectID:   projectID,
		Source:      source,
		ModuleRunID: moduleRunID,
	})
	if err != nil {
		return false, errors.MapDBError("entities.EnsureLink", err)
	}
	return created, nil
}

func (s *entityResolutionService) ResolvePersonByProfile(dbc dbctx.Context, projectID uuid.UUID, ref string, source string) (*types.Person, bool, error) {
	const op = "entities.ResolvePersonByProfile"
	if projectID == uuid.Nil {
		return nil, false, errors.Validation(op, "missing project_id")
	}
	profileURL, err := normalization.ProfileRef(ref)
	if err != nil {
		return nil, false, errors.NewError(errors.CodeValidation, op, err.Error(), err)
	}
	if source == "" {
		source = entities.PersonSourceFlowTrigger
	}
	var person *types.Person
	var created bool
	err = s.tx.Join(dbc, func(inner dbctx.Context) error {
		p, c, err := s.resolvePerson(inner, profileURL)
		if err != nil {
			return err
		}
		if c {
			if err := s.mergePerson(inner, p, personFill{PublicIdentifier: normalization.PublicIdentifier(profileURL)}); err != nil {
				return err
			}
		}
		if _, err := s.ensureLink(inner, projectID, p.ID, source, nil); err != nil {
			return err
		}
		person, created = p, c
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return person, created, nil
}
