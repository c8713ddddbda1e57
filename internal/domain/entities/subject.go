package entities

import "github.com/google/uuid"

// Subject scopes documents, claims and runs. PersonID is nil for
// project-level records such as a people-search batch.
type Subject struct {
	ProjectID uuid.UUID  `json:"projectId"`
	PersonID  *uuid.UUID `json:"personId,omitempty"`
}

func ProjectSubject(projectID uuid.UUID) Subject {
	return Subject{ProjectID: projectID}
}

func PersonSubject(projectID, personID uuid.UUID) Subject {
	pid := personID
	return Subject{ProjectID: projectID, PersonID: &pid}
}

func (s Subject) HasPerson() bool {
	return s.PersonID != nil && *s.PersonID != uuid.Nil
}

func (s Subject) Person() uuid.UUID {
	if s.PersonID == nil {
		return uuid.Nil
	}
	return *s.PersonID
}
