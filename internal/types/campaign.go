package types

// Campaign represents a fundraising campaign as stored in the donation
// contract. The contract is the single source of truth; instances of this
// struct are transient decodings of on-chain state and are rebuilt from fresh
// reads on every reload.
type Campaign struct {
	ID            uint64  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Goal          string  `json:"goal"`
	AmountRaised  string  `json:"amount_raised"`
	IsActive      bool    `json:"is_active"`
	CampaignOwner string  `json:"campaign_owner"`
	Progress      float64 `json:"progress"`
}

// Donation is an immutable record of one contribution to a campaign,
// ordered by its index within the campaign's donation list.
type Donation struct {
	Donor     string `json:"donor"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// UserDonation is one entry of a donor's cross-campaign history as returned
// by getAllUserDonations.
type UserDonation struct {
	CampaignID   uint64 `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
	Amount       string `json:"amount"`
	Timestamp    int64  `json:"timestamp"`
}
