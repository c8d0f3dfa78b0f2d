package jobconfig

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/dataloader/errors"
)

// FirstVersion is assigned to the first publish or deploy of a lineage
const FirstVersion = "v1.0"

var versionPattern = regexp.MustCompile(`^v([1-9][0-9]*)\.([0-9]+)$`)

// ParseVersion splits a v<major>.<minor> label
func ParseVersion(label string) (major, minor int, err error) {
	m := versionPattern.FindStringSubmatch(label)
	if m == nil {
		return 0, 0, errors.NewMalformedVersionError(label)
	}
	major, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, errors.NewMalformedVersionError(label)
	}
	minor, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, errors.NewMalformedVersionError(label)
	}
	return major, minor, nil
}

// NextVersion returns the label following current. A nil current starts the
// sequence at v1.0; otherwise the minor number is incremented. The major
// number is never bumped automatically.
func NextVersion(current *string) (string, error) {
	if current == nil {
		return FirstVersion, nil
	}
	major, minor, err := ParseVersion(*current)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("v%d.%d", major, minor+1), nil
}

// LatestVersion returns the highest label in labels, or nil when labels is
// empty. Ordering is numeric (v1.10 > v1.9). Any malformed label fails the
// whole call so a corrupt lineage is never silently re-sequenced.
func LatestVersion(labels []string) (*string, error) {
	var latest *semver.Version
	var latestLabel string

	for _, label := range labels {
		if _, _, err := ParseVersion(label); err != nil {
			return nil, err
		}
		v, err := semver.NewVersion(label)
		if err != nil {
			return nil, errors.WithSecondaryError(errors.NewMalformedVersionError(label), err)
		}
		if latest == nil || v.GreaterThan(latest) {
			latest = v
			latestLabel = label
		}
	}

	if latest == nil {
		return nil, nil
	}
	return &latestLabel, nil
}
