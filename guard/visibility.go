package guard

import (
	"strings"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/permissions"
)

// Region is a dashboard area shown when the caller holds any of AnyOf.
type Region struct {
	Name  string
	AnyOf []string
}

// DashboardRegions are the permission-gated areas of the staff dashboard.
var DashboardRegions = []Region{
	{"sidebar", []string{permissions.Files}},
	{"pages-overview", []string{permissions.Files}},
	{"file-manager", []string{permissions.Files}},
	{"send-reminder", []string{permissions.Send}},
	{"products", []string{permissions.Products, permissions.Categories, permissions.Inventory}},
	{"categories", []string{permissions.Categories}},
	{"inventory", []string{permissions.Inventory}},
	{"analytics", []string{permissions.Analytics}},
	{"reviews", []string{permissions.Reviews}},
	{"blog", []string{permissions.Blog}},
	{"media", []string{permissions.Media}},
	{"notes", []string{permissions.Note}},
	{"comments", []string{permissions.Comment}},
	{"orders", []string{permissions.Orders}},
	{"notifications", []string{permissions.Notifications}},
	{"payments", []string{permissions.Payments}},
	{"users", []string{permissions.Users}},
	{"backup", []string{permissions.Backup}},
}

// Visibility reports which regions u may see. Admins see everything;
// every other role sees a region only when one of its keys is granted.
func Visibility(u User, regions []Region) map[string]bool {
	admin := strings.EqualFold(u.Role, "admin")
	out := make(map[string]bool, len(regions))
	for _, r := range regions {
		out[r.Name] = admin || permissions.HasAny(u.Permissions, r.AnyOf...)
	}
	return out
}
