package reducer

import (
	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// ItemChains returns the chains of the item family:
// value, lazy value, owners, creators, calculated fields, soft delete.
func ItemChains(creators CreatorResolver) Chains[model.Item] {
	return Chains[model.Item]{
		Family: model.FamilyItem,
		Kinds: []model.Kind{
			model.KindMint,
			model.KindBurn,
			model.KindTransfer,
			model.KindLazyMint,
			model.KindLazyBurn,
			model.KindCreators,
		},
		PendingKinds: []model.Kind{
			model.KindMint,
			model.KindBurn,
			model.KindTransfer,
			model.KindLazyMint,
			model.KindLazyBurn,
		},
		Forward: Chain[model.Item](
			itemValue(apply),
			lazyValue[model.Item](apply),
			itemOwners(apply),
			itemCreators(creators),
			calculatedFields[model.Item],
			softDelete[model.Item],
		),
		Pending: Chain[model.Item](
			itemValue(apply),
			lazyValue[model.Item](apply),
			itemOwners(apply),
			calculatedFields[model.Item],
			softDelete[model.Item],
		),
		Reversed: Chain[model.Item](
			itemValue(revert),
			lazyValue[model.Item](revert),
			itemOwners(revert),
			revertedItemCreators,
			calculatedFields[model.Item],
			softDelete[model.Item],
		),
		Inactive: Chain[model.Item](
			itemValue(revert),
			lazyValue[model.Item](revert),
			itemOwners(revert),
			calculatedFields[model.Item],
			softDelete[model.Item],
		),
	}
}

// OwnershipChains returns the chains of the ownership family:
// value, lazy value, calculated fields, soft delete.
func OwnershipChains() Chains[model.Ownership] {
	kinds := []model.Kind{
		model.KindTransferTo,
		model.KindTransferFrom,
		model.KindLazyMint,
		model.KindLazyBurn,
	}

	forward := Chain[model.Ownership](
		ownershipValue(apply),
		lazyValue[model.Ownership](apply),
		calculatedFields[model.Ownership],
		softDelete[model.Ownership],
	)
	reversed := Chain[model.Ownership](
		ownershipValue(revert),
		lazyValue[model.Ownership](revert),
		calculatedFields[model.Ownership],
		softDelete[model.Ownership],
	)

	return Chains[model.Ownership]{
		Family:       model.FamilyOwnership,
		Kinds:        kinds,
		PendingKinds: kinds,
		Forward:      forward,
		Pending:      forward,
		Reversed:     reversed,
		Inactive:     reversed,
	}
}

// TokenChains returns the chains of the token family:
// token fields, calculated fields, soft delete. Pending token events only
// keep the token visible.
func TokenChains(standards StandardResolver) Chains[model.Token] {
	bookkeeping := Chain[model.Token](
		calculatedFields[model.Token],
		softDelete[model.Token],
	)

	return Chains[model.Token]{
		Family: model.FamilyToken,
		Kinds: []model.Kind{
			model.KindCollectionCreate,
			model.KindOwnershipTransfer,
		},
		PendingKinds: []model.Kind{
			model.KindCollectionCreate,
			model.KindOwnershipTransfer,
		},
		Forward: Chain[model.Token](
			tokenFields(standards),
			calculatedFields[model.Token],
			softDelete[model.Token],
		),
		Pending: bookkeeping,
		Reversed: Chain[model.Token](
			revertedTokenFields,
			calculatedFields[model.Token],
			softDelete[model.Token],
		),
		Inactive: bookkeeping,
	}
}
