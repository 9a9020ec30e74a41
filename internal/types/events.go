package types

// Event types keep the names clients already index on.
const (
	EventTypeGameCreated          = "GameCreated"
	EventTypeSystemChoiceRecorded = "SystemChoiceRecorded"
	EventTypeDecryptionRequested  = "DecryptionRequested"
	EventTypeGameSettled          = "GameSettled"
	EventTypeRewardClaimed        = "RewardClaimed"
	EventTypeHouseFunded          = "HouseFunded"
	EventTypeBankMinted           = "BankMinted"
	EventTypeBankSent             = "BankSent"
)

const (
	AttributeKeyGameID       = "gameId"
	AttributeKeyPlayer       = "player"
	AttributeKeyAmount       = "amount"
	AttributeKeyTimestamp    = "timestamp"
	AttributeKeyPlayerChoice = "playerChoice"
	AttributeKeySystemChoice = "systemChoice"
	AttributeKeyResult       = "result"
	AttributeKeyReward       = "reward"
	AttributeKeyHandle       = "handle"
	AttributeKeyResultHandle = "resultHandle"
	AttributeKeyFrom         = "from"
	AttributeKeyTo           = "to"
	AttributeKeyGameIDs      = "gameIds"
)
