package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workhub/internal/domain"
)

func TestDefaultGraphIsValid(t *testing.T) {
	g, err := DefaultGraph()
	require.NoError(t, err)
	assert.Equal(t, domain.EntityTypes, g.Types())

	cols := g.Columns(domain.TypeTask)
	assert.Contains(t, cols.Scalars, "department_id")
	assert.Contains(t, cols.Scalars, "vendor_id")
	assert.ElementsMatch(t, []string{"watcher_ids", "assignee_ids", "material_ids"}, cols.Lists)

	cols = g.Columns(domain.TypeComment)
	assert.Equal(t, []string{"parent_id", "parent_type"}, cols.Scalars)
	assert.Equal(t, []string{"mention_ids"}, cols.Lists)
}

func TestGraphRejectsOwnershipCycle(t *testing.T) {
	order := []domain.EntityType{domain.TypeOrganization, domain.TypeDepartment, domain.TypeUser}
	decls := map[domain.EntityType]Declaration{
		domain.TypeOrganization: {Table: "organizations", Owns: []Edge{{Child: domain.TypeDepartment, ForeignKey: "organization_id"}}},
		domain.TypeDepartment:   {Table: "departments", Owns: []Edge{{Child: domain.TypeUser, ForeignKey: "department_id"}}},
		domain.TypeUser:         {Table: "users", Owns: []Edge{{Child: domain.TypeOrganization, ForeignKey: "owner_id"}}},
	}
	_, err := NewGraph(order, decls)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ownership cycle")
}

func TestGraphRejectsBadDeclarations(t *testing.T) {
	order := []domain.EntityType{domain.TypeTask, domain.TypeComment}
	decls := map[domain.EntityType]Declaration{
		domain.TypeTask: {
			Table:    "tasks",
			Owns:     []Edge{{Child: domain.TypeComment}},
			Critical: []Dependency{{Field: "vendor_id", Target: domain.TypeVendor}},
		},
		domain.TypeComment: {
			Table:  "comments",
			Owns:   []Edge{{Child: domain.TypeComment, ForeignKey: "parent_id"}},
			Parent: &ParentPointer{IDColumn: "parent_id"},
		},
	}
	_, err := NewGraph(order, decls)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "foreign key is required")
	assert.Contains(t, msg, "undeclared type vendor")
	assert.Contains(t, msg, "self edge on comment must be polymorphic")
	assert.Contains(t, msg, "exactly one of type column or fixed type")
}

func TestGraphParentsFollowTypeTag(t *testing.T) {
	g := MustDefaultGraph()
	rec := domain.Record{
		Ref:    domain.Ref{Type: domain.TypeComment, ID: "c2"},
		Fields: map[string]string{"parent_id": "c1", "parent_type": "comment"},
	}
	assert.Equal(t, []domain.Ref{{Type: domain.TypeComment, ID: "c1"}}, g.Parents(rec))

	parent, ok := g.ParentOf(rec)
	require.True(t, ok)
	assert.Equal(t, domain.Ref{Type: domain.TypeComment, ID: "c1"}, parent)

	rec.Fields["parent_type"] = "spaceship"
	_, ok = g.ParentOf(rec)
	assert.False(t, ok)
	assert.Empty(t, g.Parents(rec))
}
