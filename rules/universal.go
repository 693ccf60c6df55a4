package rules

import (
	"fmt"
	"strings"

	"github.com/probeum/mintpool/premint"
	"github.com/probeum/mintpool/storage"
)

const (
	maxTokenURILength     = 2 * 1024
	maxDataURITokenLength = 8 * 1024
)

// UniversalRules returns the four built-in rules that apply to every
// premint kind via the shared metadata projection, per SPEC_FULL.md §4.3.
func UniversalRules() []Rule {
	return []Rule{
		NewMetadataRule("token_uri_length", tokenURILength),
		NewMetadataRule("existing_token_uri", existingTokenURI),
		NewMetadataRule("signer_matches", signerMatches),
		NewMetadataRule("version_is_higher", versionIsHigher),
	}
}

func tokenURILength(meta premint.Metadata, _ *RuleContext) (Evaluation, error) {
	maxAllowed := maxTokenURILength
	if strings.HasPrefix(meta.URI, "data:") {
		maxAllowed = maxDataURITokenLength
	}
	switch {
	case len(meta.URI) == 0:
		return RejectEval("Token URI is empty"), nil
	case len(meta.URI) > maxAllowed:
		return RejectEval(fmt.Sprintf("Token URI is too long: %d > %d", len(meta.URI), maxAllowed)), nil
	default:
		return AcceptEval(), nil
	}
}

func existingTokenURI(meta premint.Metadata, ctx *RuleContext) (Evaluation, error) {
	existing, err := ctx.Storage.GetForTokenURI(meta.URI)
	if err == storage.ErrNotFound {
		return AcceptEval(), nil
	}
	if err != nil {
		return Evaluation{}, err
	}

	existingMeta := existing.Metadata()
	if existingMeta.ID == meta.ID {
		// Same logical premint, different revision: allowed.
		return AcceptEval(), nil
	}
	return RejectEval("Token URI already exists"), nil
}

func signerMatches(meta premint.Metadata, ctx *RuleContext) (Evaluation, error) {
	if ctx.Existing == nil {
		return AcceptEval(), nil
	}
	existingMeta := ctx.Existing.Metadata()
	if existingMeta.Signer != meta.Signer {
		return RejectEval("Signer does not match existing premint"), nil
	}
	return AcceptEval(), nil
}

func versionIsHigher(meta premint.Metadata, ctx *RuleContext) (Evaluation, error) {
	if ctx.Existing == nil {
		return AcceptEval(), nil
	}
	existingMeta := ctx.Existing.Metadata()
	if meta.Version <= existingMeta.Version {
		return RejectEval("Version is not higher than existing premint"), nil
	}
	return AcceptEval(), nil
}
