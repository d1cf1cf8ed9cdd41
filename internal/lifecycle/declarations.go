package lifecycle

import "workhub/internal/domain"

func polymorphic(child domain.EntityType) Edge {
	return Edge{Child: child, ForeignKey: "parent_id", TypeColumn: "parent_type"}
}

// DefaultDeclarations is the ownership, weak-reference and critical-dependency
// table for every entity type.
func DefaultDeclarations() map[domain.EntityType]Declaration {
	return map[domain.EntityType]Declaration{
		domain.TypeOrganization: {
			Table: "organizations",
			Owns: []Edge{
				{Child: domain.TypeDepartment, ForeignKey: "organization_id"},
				{Child: domain.TypeVendor, ForeignKey: "organization_id"},
			},
		},
		domain.TypeDepartment: {
			Table: "departments",
			Owns: []Edge{
				{Child: domain.TypeUser, ForeignKey: "department_id"},
				{Child: domain.TypeMaterial, ForeignKey: "department_id"},
				{Child: domain.TypeTask, ForeignKey: "department_id"},
			},
			WeakRefs: []WeakRef{
				{Field: "head_id", Target: domain.TypeUser},
			},
		},
		domain.TypeUser: {
			Table: "users",
			Owns: []Edge{
				{Child: domain.TypeNotification, ForeignKey: "recipient_id"},
			},
		},
		domain.TypeVendor: {
			Table: "vendors",
		},
		domain.TypeMaterial: {
			Table: "materials",
			Critical: []Dependency{
				{Field: "vendor_id", Target: domain.TypeVendor},
			},
		},
		domain.TypeTask: {
			Table: "tasks",
			Owns: []Edge{
				polymorphic(domain.TypeComment),
				{Child: domain.TypeActivity, ForeignKey: "task_id"},
				polymorphic(domain.TypeAttachment),
			},
			WeakRefs: []WeakRef{
				{Field: "watcher_ids", Target: domain.TypeUser, Many: true},
				{Field: "assignee_ids", Target: domain.TypeUser, Many: true},
				{Field: "material_ids", Target: domain.TypeMaterial, Many: true},
			},
			Critical: []Dependency{
				{Field: "vendor_id", Target: domain.TypeVendor},
			},
		},
		domain.TypeActivity: {
			Table: "activities",
			Owns: []Edge{
				polymorphic(domain.TypeComment),
				polymorphic(domain.TypeAttachment),
			},
			Parent: &ParentPointer{IDColumn: "task_id", Fixed: domain.TypeTask},
		},
		domain.TypeComment: {
			Table: "comments",
			Owns: []Edge{
				polymorphic(domain.TypeComment),
				polymorphic(domain.TypeAttachment),
			},
			WeakRefs: []WeakRef{
				{Field: "mention_ids", Target: domain.TypeUser, Many: true},
			},
			Parent: &ParentPointer{IDColumn: "parent_id", TypeColumn: "parent_type"},
		},
		domain.TypeAttachment: {
			Table:  "attachments",
			Parent: &ParentPointer{IDColumn: "parent_id", TypeColumn: "parent_type"},
		},
		domain.TypeNotification: {
			Table: "notifications",
			WeakRefs: []WeakRef{
				{Field: "task_id", Target: domain.TypeTask},
			},
		},
	}
}

// DefaultGraph validates DefaultDeclarations in cascade order.
func DefaultGraph() (*Graph, error) {
	return NewGraph(domain.EntityTypes, DefaultDeclarations())
}

// MustDefaultGraph is DefaultGraph for process start-up.
func MustDefaultGraph() *Graph {
	g, err := DefaultGraph()
	if err != nil {
		panic(err)
	}
	return g
}
