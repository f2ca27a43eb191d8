package catalog

// registeredPermissions is the canonical permission table. Changing it
// is a catalog update shipped with a release, not a data mutation.
var registeredPermissions = []Permission{
	{Code: "books.view", Name: "View books", Category: CategoryBooks},
	{Code: "books.create", Name: "Add books", Category: CategoryBooks},
	{Code: "books.update", Name: "Edit books", Category: CategoryBooks},
	{Code: "books.delete", Name: "Remove books", Category: CategoryBooks},
	{Code: "books.import", Name: "Bulk import books", Category: CategoryBooks},

	{Code: "students.view", Name: "View students", Category: CategoryStudents},
	{Code: "students.manage", Name: "Manage students", Category: CategoryStudents},

	{Code: "loans.view", Name: "View loans", Category: CategoryCirculation},
	{Code: "loans.issue", Name: "Issue loans", Category: CategoryCirculation},
	{Code: "loans.return", Name: "Process returns", Category: CategoryCirculation},

	{Code: "fines.view", Name: "View fines", Category: CategoryFines},
	{Code: "fines.collect", Name: "Collect fines", Category: CategoryFines},
	{Code: "fines.waive", Name: "Waive fines", Category: CategoryFines},

	{Code: "reports.view", Name: "View reports", Category: CategoryReports},
	{Code: "reports.export", Name: "Export reports", Category: CategoryReports},

	{Code: "users.view", Name: "View users", Category: CategoryAdmin},
	{Code: "users.manage", Name: "Manage users", Category: CategoryAdmin},
	{Code: "overrides.view", Name: "View permission overrides", Category: CategoryAdmin},
	{Code: "overrides.manage", Name: "Manage permission overrides", Category: CategoryAdmin},
	{Code: "settings.manage", Name: "Manage settings", Category: CategoryAdmin},
}

var roleBaselines = map[Role][]string{
	RoleSuperAdmin: {
		"books.view", "books.create", "books.update", "books.delete", "books.import",
		"students.view", "students.manage",
		"loans.view", "loans.issue", "loans.return",
		"fines.view", "fines.collect", "fines.waive",
		"reports.view", "reports.export",
		"users.view", "users.manage", "overrides.view", "overrides.manage", "settings.manage",
	},
	RoleAdmin: {
		"books.view", "books.create", "books.update", "books.delete", "books.import",
		"students.view", "students.manage",
		"loans.view", "loans.issue", "loans.return",
		"fines.view", "fines.collect", "fines.waive",
		"reports.view", "reports.export",
		"users.view", "users.manage", "overrides.view", "overrides.manage",
	},
	RoleLibrarian: {
		"books.view", "books.create", "books.update", "books.import",
		"students.view", "students.manage",
		"loans.view", "loans.issue", "loans.return",
		"fines.view", "fines.collect",
		"reports.view",
	},
	RoleStaff: {
		"books.view",
		"students.view",
		"loans.view", "loans.return",
		"fines.view",
	},
	RoleSystem: {
		"books.import",
		"reports.view", "reports.export",
	},
}
