// Package teamid detects and validates Apple Developer Team IDs, and
// rewrites app-group placeholders once one is known.
package teamid

import (
	"os/exec"
	"strings"

	"github.com/ipasign/ipasign/internal/ipasignerr"
)

// DetectTeamID searches the keychain for a codesigning identity and
// extracts the team ID from the parenthesized suffix of its common name.
// It shells out to `security find-identity`; unavailable off macOS.
func DetectTeamID() (string, error) {
	cmd := exec.Command("security", "find-identity", "-v", "-p", "codesigning")
	output, err := cmd.Output()
	if err != nil {
		return "", ipasignerr.New("teamid.DetectTeamID", ipasignerr.KindIOFailure, "", err)
	}

	for _, line := range strings.Split(string(output), "\n") {
		if candidate, ok := ExtractFromCN(line); ok {
			return candidate, nil
		}
	}
	return "", ipasignerr.New("teamid.DetectTeamID", ipasignerr.KindNotABundle, "", errNoIdentity)
}

// IsValidTeamID reports whether teamID is the shape Apple issues:
// exactly 10 uppercase alphanumeric characters.
func IsValidTeamID(teamID string) bool {
	if len(teamID) != 10 {
		return false
	}
	for _, r := range teamID {
		if !((r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// ExtractFromCN pulls the parenthesized team id out of a certificate
// common name, e.g. "iPhone Distribution: Example Corp (ABCDE12345)"
// yields ("ABCDE12345", true). It reports false if no parenthesized
// suffix is present or it doesn't validate as a team id.
func ExtractFromCN(cn string) (string, bool) {
	start := strings.LastIndex(cn, "(")
	end := strings.LastIndex(cn, ")")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	candidate := cn[start+1 : end]
	if !IsValidTeamID(candidate) {
		return "", false
	}
	return candidate, true
}

// SubstituteTeamIDInGroups replaces every "TEAMID" placeholder in groups
// with teamID in place, returning the number of substitutions made.
func SubstituteTeamIDInGroups(groups []string, teamID string) int {
	if teamID == "" {
		return 0
	}
	n := 0
	for i, group := range groups {
		if strings.Contains(group, "TEAMID") {
			groups[i] = strings.ReplaceAll(group, "TEAMID", teamID)
			n++
		}
	}
	return n
}

// AutoSubstituteTeamIDInGroups detects the team ID only if groups actually
// contains a placeholder, then substitutes it everywhere it appears.
func AutoSubstituteTeamIDInGroups(groups []string) (teamID string, substitutions int, err error) {
	needsSubstitution := false
	for _, group := range groups {
		if strings.Contains(group, "TEAMID") {
			needsSubstitution = true
			break
		}
	}
	if !needsSubstitution {
		return "", 0, nil
	}

	teamID, err = DetectTeamID()
	if err != nil {
		return "", 0, err
	}
	return teamID, SubstituteTeamIDInGroups(groups, teamID), nil
}

type teamidErr string

func (e teamidErr) Error() string { return string(e) }

const errNoIdentity = teamidErr("no codesigning identity with a valid team id found")
