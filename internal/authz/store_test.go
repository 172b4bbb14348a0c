package authz

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func newMockStore(t *testing.T) (Store, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	return NewStore(sqlx.NewDb(raw, "postgres")), mock
}

func TestStoreUserOrganizationUnknownUser(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT org_id FROM users").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"org_id"}))

	org, found, err := s.UserOrganization(ctx, "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found || org != "" {
		t.Fatalf("expected no organization, got %q", org)
	}
}

func TestStoreTeamMembershipsScanPaths(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT t.id AS team_id, t.path").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"team_id", "path"}).
			AddRow("leaf", pq.StringArray{"root-team", "mid", "leaf"}))

	memberships, err := s.TeamMemberships(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(memberships) != 1 || len(memberships[0].Path) != 3 {
		t.Fatalf("unexpected memberships: %+v", memberships)
	}
}

func TestStoreTeamAttachmentsSkipsEmptyInput(t *testing.T) {
	s, mock := newMockStore(t)
	// no expectations: an empty id list must not hit the database
	atts, err := s.TeamAttachments(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atts != nil {
		t.Fatalf("expected no attachments, got %+v", atts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreUserAttachmentsScansStatements(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"policy_id", "name", "version", "org_id", "statements", "variables"}
	mock.ExpectQuery("FROM policy_attachments a").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"p1", "reader", "1", "org-a",
			[]byte(`[{"effect":"Allow","actions":["Read"],"resources":["db:*"]}]`),
			[]byte(`{"name":"reports"}`),
		))

	atts, err := s.UserAttachments(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(atts) != 1 {
		t.Fatalf("expected one attachment, got %d", len(atts))
	}
	a := atts[0]
	if a.Shared() {
		t.Fatalf("attachment has an owner")
	}
	if len(a.Statements) != 1 || a.Statements[0].Actions[0] != "Read" {
		t.Fatalf("statements not scanned: %+v", a.Statements)
	}
	if a.Variables["name"] != "reports" {
		t.Fatalf("variables not scanned: %+v", a.Variables)
	}
}
