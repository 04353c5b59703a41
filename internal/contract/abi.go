package contract

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// donationABI is the published interface of the deployed donation contract.
// The client depends on this surface bit-exactly; changing it requires a new
// contract deployment.
const donationABI = `[
	{"type":"function","name":"getNumberOfCampaigns","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getCampaign","stateMutability":"view","inputs":[{"name":"_campaignId","type":"uint256"}],"outputs":[{"name":"name","type":"string"},{"name":"description","type":"string"},{"name":"goal","type":"uint256"},{"name":"amountRaised","type":"uint256"},{"name":"isActive","type":"bool"},{"name":"owner","type":"address"}]},
	{"type":"function","name":"getCampaignDonationsCount","stateMutability":"view","inputs":[{"name":"_campaignId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getCampaignDonation","stateMutability":"view","inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_donationIndex","type":"uint256"}],"outputs":[{"name":"donor","type":"address"},{"name":"amount","type":"uint256"},{"name":"timestamp","type":"uint256"},{"name":"message","type":"string"}]},
	{"type":"function","name":"getAllUserDonations","stateMutability":"view","inputs":[{"name":"_user","type":"address"}],"outputs":[{"name":"campaignIds","type":"uint256[]"},{"name":"amounts","type":"uint256[]"},{"name":"timestamps","type":"uint256[]"},{"name":"campaignNames","type":"string[]"}]},
	{"type":"function","name":"createCampaign","stateMutability":"nonpayable","inputs":[{"name":"_name","type":"string"},{"name":"_description","type":"string"},{"name":"_goal","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"donate","stateMutability":"payable","inputs":[{"name":"_campaignId","type":"uint256"},{"name":"_message","type":"string"}],"outputs":[]},
	{"type":"function","name":"closeCampaign","stateMutability":"nonpayable","inputs":[{"name":"_campaignId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdrawFunds","stateMutability":"nonpayable","inputs":[{"name":"_campaignId","type":"uint256"}],"outputs":[]}
]`

var parsedABI = mustParseABI(donationABI)

func mustParseABI(json string) abi.ABI {
	cabi, err := abi.JSON(strings.NewReader(json))
	if err != nil {
		panic(err)
	}
	return cabi
}
