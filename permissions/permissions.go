// Package permissions is the single permission taxonomy shared by the API
// middleware, the staff/me projection and the dashboard access guard.
//
// Permissions are stored and compared as canonical keys: lowercase
// alphanumeric strings from a closed vocabulary. Legacy spellings and UI
// labels ("Media Library", "media_files", "Create Post") collapse onto the
// canonical key through one alias table.
package permissions

import (
	"fmt"
	"strings"
)

// MaxPermissions caps the number of keys a single user may hold.
const MaxPermissions = 50

// Canonical permission keys.
const (
	Media         = "media"
	Blog          = "blog"
	Products      = "products"
	Categories    = "categories"
	Inventory     = "inventory"
	Analytics     = "analytics"
	Reviews       = "reviews"
	Files         = "files"
	Send          = "send"
	Orders        = "orders"
	Notifications = "notifications"
	Payments      = "payments"
	Users         = "users"
	Backup        = "backup"
	Note          = "note"
	Comment       = "comment"
)

// aliasGroups maps each canonical key to the stripped spellings that mean
// the same grant. The canonical key itself is implied.
var aliasGroups = []struct {
	key     string
	aliases []string
}{
	{Media, []string{"medialibrary", "mediafiles"}},
	{Blog, []string{"blogadmin", "createpost", "posts", "post"}},
	{Products, []string{"product", "addproduct", "bulkaddproducts"}},
	{Categories, []string{"category", "productcategories"}},
	{Inventory, []string{"stock", "productstock"}},
	{Analytics, []string{"productanalytics"}},
	{Reviews, []string{"productreviews", "review"}},
	{Files, []string{"filemanager", "pages", "websitepages"}},
	{Send, []string{"sendnotification", "senddelivery", "delivery", "notification"}},
	{Orders, []string{"order", "ordermanagement"}},
	{Notifications, []string{"adminalerts", "alerts"}},
	{Payments, []string{"payment", "paymentsettings"}},
	{Users, []string{"user", "usermanagement", "staff"}},
	{Backup, []string{"backups", "sitebackup"}},
	{Note, []string{"notes", "createnote"}},
	{Comment, []string{"comments", "createcomment"}},
}

var (
	aliasIndex = buildIndex()
	canonical  = buildCanonical()
)

func buildIndex() map[string]string {
	idx := make(map[string]string)
	for _, g := range aliasGroups {
		idx[g.key] = g.key
		for _, a := range g.aliases {
			idx[a] = g.key
		}
	}
	return idx
}

func buildCanonical() []string {
	out := make([]string, 0, len(aliasGroups))
	for _, g := range aliasGroups {
		out = append(out, g.key)
	}
	return out
}

// Canonical returns the closed vocabulary of canonical keys in table order.
func Canonical() []string {
	out := make([]string, len(canonical))
	copy(out, canonical)
	return out
}

// IsCanonical reports whether key is one of the fixed canonical keys.
func IsCanonical(key string) bool {
	k, ok := aliasIndex[key]
	return ok && k == key
}

// NormalizeKey trims, lowercases and strips everything outside [a-z0-9],
// then resolves aliases. Unknown keys are returned stripped but otherwise
// unchanged; empty input yields "".
func NormalizeKey(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	stripped := b.String()
	if stripped == "" {
		return ""
	}
	if key, ok := aliasIndex[stripped]; ok {
		return key
	}
	return stripped
}

// NormalizeValue coerces an arbitrary value (typically decoded JSON) to a
// string before normalizing it. nil normalizes to "".
func NormalizeValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return NormalizeKey(x)
	case fmt.Stringer:
		return NormalizeKey(x.String())
	default:
		return NormalizeKey(fmt.Sprint(x))
	}
}

// Normalize maps raw inputs to canonical keys, dropping empties and
// duplicates (first occurrence wins) and truncating to MaxPermissions.
// The result is never nil.
func Normalize[T any](raw []T) []string {
	out := make([]string, 0, min(len(raw), MaxPermissions))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		if len(out) == MaxPermissions {
			break
		}
		key := NormalizeValue(r)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// Has reports whether perms grants key. Both sides go through NormalizeKey,
// so a permission stored under a legacy label still matches.
func Has(perms []string, key string) bool {
	want := NormalizeKey(key)
	if want == "" {
		return false
	}
	for _, p := range perms {
		if NormalizeKey(p) == want {
			return true
		}
	}
	return false
}

// HasAny reports whether perms grants at least one of keys.
func HasAny(perms []string, keys ...string) bool {
	for _, k := range keys {
		if Has(perms, k) {
			return true
		}
	}
	return false
}
