package rules

import (
	"fmt"
	"math/big"

	"github.com/probeum/mintpool/common"
	"github.com/probeum/mintpool/crypto"
	"github.com/probeum/mintpool/premint"
)

// supportedChainIDs mirrors the original's hardcoded `[7777777, 999999999,
// 8453]` chain allowlist for ZoraV2 premints.
var supportedChainIDs = map[uint64]bool{
	7777777:   true,
	999999999: true,
	8453:      true,
}

// ZoraV2Rules returns the five built-in rules specific to the
// zora_premint_v2 kind, per SPEC_FULL.md §4.3.
func ZoraV2Rules() []Rule {
	return []Rule{
		NewTypedRule("ZoraPremintV2::is_authorized_to_create_premint", isAuthorizedToCreatePremint),
		NewTypedRule("ZoraPremintV2::is_valid_signature", isValidSignature),
		NewTypedRule("ZoraPremintV2::is_chain_supported", isChainSupported),
		NewTypedRule("ZoraPremintV2::not_minted", notMinted),
		NewTypedRule("ZoraPremintV2::premint_version_supported", premintVersionSupported),
	}
}

func isChainSupported(z *premint.ZoraPremintV2, _ *RuleContext) (Evaluation, error) {
	if supportedChainIDs[z.ChainID] {
		return AcceptEval(), nil
	}
	return RejectEval("Chain not supported"), nil
}

// isValidSignature recovers the signer from the EIP-712 hash under the
// premint's own domain and checks it equals the proposed contract admin.
// Entirely offline, per spec.md §4.3.
func isValidSignature(z *premint.ZoraPremintV2, _ *RuleContext) (Evaluation, error) {
	sig := common.FromHex(z.Signature)
	if len(sig) != crypto.SignatureLength {
		return Evaluation{}, fmt.Errorf("malformed signature: expected %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	hash := z.Eip712SigningHash()
	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return Evaluation{}, fmt.Errorf("recovering signer: %w", err)
	}
	signer := crypto.PubkeyToAddress(*pub)

	if signer != z.Collection.ContractAdmin {
		return RejectEval(fmt.Sprintf("Invalid signature for contract admin %s", z.Collection.ContractAdmin.Hex())), nil
	}
	return AcceptEval(), nil
}

// isAuthorizedToCreatePremint calls the factory contract's
// isAuthorizedToCreatePremint view function; requires a chain RPC client
// in context, else this rule is inapplicable (Ignore), matching "missing
// client => Ignore" from SPEC_FULL.md §4.3.
func isAuthorizedToCreatePremint(z *premint.ZoraPremintV2, ctx *RuleContext) (Evaluation, error) {
	if ctx.RPC == nil {
		return IgnoreEval("no RPC client for chain"), nil
	}
	data := encodeIsAuthorizedToCreatePremintCall(z.CollectionAddress, z.Collection.ContractAdmin, z.Collection.ContractAdmin)
	out, err := ctx.RPC.Call(ctx.Ctx, premint.PremintFactoryAddr, data)
	if err != nil {
		return Evaluation{}, fmt.Errorf("calling isAuthorizedToCreatePremint: %w", err)
	}
	if len(out) < 32 {
		return Evaluation{}, fmt.Errorf("short return data from isAuthorizedToCreatePremint")
	}
	if out[31] != 0 {
		return AcceptEval(), nil
	}
	return RejectEval("Unauthorized to create premint"), nil
}

// notMinted calls the factory contract's premintStatus view function.
func notMinted(z *premint.ZoraPremintV2, ctx *RuleContext) (Evaluation, error) {
	if ctx.RPC == nil {
		return IgnoreEval("no RPC client for chain"), nil
	}
	data := encodePremintStatusCall(z.CollectionAddress, z.Premint.UID)
	out, err := ctx.RPC.Call(ctx.Ctx, premint.PremintFactoryAddr, data)
	if err != nil {
		return Evaluation{}, fmt.Errorf("calling premintStatus: %w", err)
	}
	if len(out) < 64 {
		return Evaluation{}, fmt.Errorf("short return data from premintStatus")
	}
	contractCreated := out[31] != 0
	tokenIDForPremint := new(big.Int).SetBytes(out[32:64])
	if contractCreated && tokenIDForPremint.Sign() != 0 {
		return RejectEval("Premint already minted"), nil
	}
	return AcceptEval(), nil
}

// premintVersionSupported calls supportedPremintSignatureVersions and
// checks "2" is among the returned version strings.
func premintVersionSupported(z *premint.ZoraPremintV2, ctx *RuleContext) (Evaluation, error) {
	if ctx.RPC == nil {
		return IgnoreEval("no RPC client for chain"), nil
	}
	data := encodeSupportedPremintSignatureVersionsCall(z.CollectionAddress)
	out, err := ctx.RPC.Call(ctx.Ctx, premint.PremintFactoryAddr, data)
	if err != nil {
		return Evaluation{}, fmt.Errorf("calling supportedPremintSignatureVersions: %w", err)
	}
	versions, err := decodeStringArray(out)
	if err != nil {
		return Evaluation{}, fmt.Errorf("decoding supportedPremintSignatureVersions: %w", err)
	}
	for _, v := range versions {
		if v == "2" {
			return AcceptEval(), nil
		}
	}
	return RejectEval("Premint version 2 not supported by contract"), nil
}
