// Package vex renders the tracked patched and unpatched sets as an OpenVEX document.
package vex

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/jfeddern/CVETrack/internal/types"
	"github.com/openvex/go-vex/pkg/vex"
	"github.com/package-url/packageurl-go"
	"github.com/sirupsen/logrus"
)

const (
	DefaultAuthor = "cvetrack"

	ignoredStatus   = "Ignored"
	ignoredImpact   = "Issue is ignored by the build's CVE check configuration"
	investigateNote = "Unpatched in the latest scan"
)

// test seam for id generation.
var generateID = func(doc *vex.VEX) (string, error) { return doc.GenerateCanonicalID() }

type OpenVex struct {
	Author string
	logger *logrus.Logger
}

func NewOpenVex(author string, logger *logrus.Logger) *OpenVex {
	if author == "" {
		author = DefaultAuthor
	}
	return &OpenVex{Author: author, logger: logger}
}

// CreateDocument builds one statement per tracked identifier. Patched issues are
// fixed, ignored issues are not_affected, unpatched issues are under_investigation.
func (o *OpenVex) CreateDocument(patched, unpatched *types.RecordSet, timestamp time.Time) (*vex.VEX, error) {
	doc := &vex.VEX{Metadata: vex.Metadata{
		Context: vex.Context,
		Author:  o.Author,
		Tooling: DefaultAuthor,
		Version: 1,
	}}
	doc.Timestamp = &timestamp

	for _, id := range patched.Keys() {
		record, _ := patched.Get(id)
		statement := newStatement(id, record)
		statement.Status = vex.StatusFixed
		if statusOf(record) == ignoredStatus {
			statement.Status = vex.StatusNotAffected
			statement.Justification = vex.VulnerableCodeNotPresent
			statement.ImpactStatement = ignoredImpact
		}
		doc.Statements = append(doc.Statements, statement)
	}

	for _, id := range unpatched.Keys() {
		record, _ := unpatched.Get(id)
		statement := newStatement(id, record)
		statement.Status = vex.StatusUnderInvestigation
		statement.StatusNotes = investigateNote
		doc.Statements = append(doc.Statements, statement)
	}

	docID, err := generateID(doc)
	if err != nil {
		return nil, err
	}
	doc.ID = docID

	o.logger.WithFields(logrus.Fields{
		"operation":  "create_vex",
		"statements": len(doc.Statements),
	}).Debug("Created OpenVEX document")

	return doc, nil
}

// Render encodes the document as JSON
func (o *OpenVex) Render(doc *vex.VEX) ([]byte, error) {
	var buf bytes.Buffer
	if err := doc.ToJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newStatement(id string, record types.IssueRecord) vex.Statement {
	return vex.Statement{
		Vulnerability: vex.Vulnerability{Name: vex.VulnerabilityID(id)},
		Products: []vex.Product{
			{Component: vex.Component{ID: PackageURL(record.Name, record.Version)}},
		},
	}
}

// PackageURL returns the generic purl identifying a package at a version
func PackageURL(name, version string) string {
	return packageurl.NewPackageURL(packageurl.TypeGeneric, "", name, version, nil, "").ToString()
}

func statusOf(record types.IssueRecord) string {
	var issue types.Issue
	if err := json.Unmarshal(record.Issue, &issue); err != nil {
		return ""
	}
	return issue.Status
}
