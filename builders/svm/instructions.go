package svm

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ComputeBudgetProgramID is the Solana Compute Budget program ID.
var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

// Token2022ProgramID is the SPL Token-2022 program ID. Mints owned by this
// program need Token-2022 token accounts rather than classic ones.
var Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

// DefaultComputeUnits is the default compute unit limit for transactions.
const DefaultComputeUnits uint32 = 200_000

// DefaultComputeUnitPrice is the default compute unit price in microlamports.
const DefaultComputeUnitPrice uint64 = 10_000

// buildSetComputeUnitLimitInstruction creates a SetComputeUnitLimit
// instruction. Format: [2, units (u32 little-endian)].
func buildSetComputeUnitLimitInstruction(units uint32) solana.Instruction {
	data := make([]byte, 5)
	data[0] = 2 // SetComputeUnitLimit discriminator
	binary.LittleEndian.PutUint32(data[1:], units)

	return solana.NewInstruction(
		ComputeBudgetProgramID,
		solana.AccountMetaSlice{},
		data,
	)
}

// buildSetComputeUnitPriceInstruction creates a SetComputeUnitPrice
// instruction. Format: [3, microlamports (u64 little-endian)].
func buildSetComputeUnitPriceInstruction(microlamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = 3 // SetComputeUnitPrice discriminator
	binary.LittleEndian.PutUint64(data[1:], microlamports)

	return solana.NewInstruction(
		ComputeBudgetProgramID,
		solana.AccountMetaSlice{},
		data,
	)
}

// deriveTokenAccount derives the associated token account address for
// (owner, mint) under the given token program. The token program is part of
// the derivation seeds, so classic and Token-2022 mints map to different
// addresses for the same owner.
func deriveTokenAccount(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress(
		[][]byte{
			owner.Bytes(),
			tokenProgram.Bytes(),
			mint.Bytes(),
		},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive token account: %w", err)
	}
	return address, nil
}

// buildCreateIdempotentTokenAccountInstruction creates the destination token
// account if and only if it does not exist yet (CreateIdempotent,
// instruction index 1, is a no-op for existing accounts). The payer — the
// fee sponsor, never the sender — funds the rent-exempt balance.
//
// Accounts:
//
//	[0] payer (signer, writable)
//	[1] associatedToken (writable)
//	[2] owner
//	[3] mint
//	[4] systemProgram
//	[5] tokenProgram
func buildCreateIdempotentTokenAccountInstruction(payer, owner, mint, tokenProgram solana.PublicKey) (solana.Instruction, error) {
	tokenAccount, err := deriveTokenAccount(owner, mint, tokenProgram)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
		{PublicKey: tokenAccount, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: false, IsWritable: false},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: tokenProgram, IsSigner: false, IsWritable: false},
	}

	// Instruction data is just [1] for CreateIdempotent.
	data := []byte{1}

	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		accounts,
		data,
	), nil
}

// buildTransferCheckedInstruction creates a TransferChecked instruction
// under the given token program. TransferChecked (instruction index 12)
// carries the expected decimals so the transfer fails on-chain if the mint's
// decimals disagree.
//
// Format: [12, amount (u64 little-endian), decimals].
func buildTransferCheckedInstruction(
	source, mint, destination solana.PublicKey,
	owner solana.PublicKey,
	tokenProgram solana.PublicKey,
	amount uint64,
	decimals uint8,
) solana.Instruction {
	data := make([]byte, 10)
	data[0] = 12 // TransferChecked discriminator
	binary.LittleEndian.PutUint64(data[1:], amount)
	data[9] = decimals

	accounts := solana.AccountMetaSlice{
		{PublicKey: source, IsSigner: false, IsWritable: true},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: destination, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: true, IsWritable: false},
	}

	return solana.NewInstruction(
		tokenProgram,
		accounts,
		data,
	)
}
