package store

import "sort"

// SortDesc orders versions by descending semantic-version precedence.
// Pre-release versions sort below their corresponding release, per the
// semver precedence table. The sort is stable so equal versions keep
// insertion order.
func SortDesc(versions []*Version) {
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].Version.GreaterThan(versions[j].Version)
	})
}

// Latest returns the version with the greatest semantic-version value, or
// nil for an empty slice. Independent of insertion order.
func Latest(versions []*Version) *Version {
	var latest *Version
	for _, v := range versions {
		if latest == nil || v.Version.GreaterThan(latest.Version) {
			latest = v
		}
	}
	return latest
}
