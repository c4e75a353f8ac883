package vault

// Payout é o resultado financeiro de uma aposta resolvida
type Payout struct {
	Pot        Amount
	Commission Amount
	Payout     Amount
}

var (
	two            = NewAmount(2)
	bpsDenominator = NewAmount(BpsDenominator)
)

// ComputePayout calcula pot = 2*stake, commission = floor(pot*bps/10000), payout = pot - commission
func ComputePayout(stake Amount, commissionBps uint16) (Payout, error) {
	if commissionBps > BpsDenominator {
		return Payout{}, invalidCommission()
	}
	pot, err := stake.Mul(two)
	if err != nil {
		return Payout{}, err
	}
	scaled, err := pot.Mul(NewAmount(uint64(commissionBps)))
	if err != nil {
		return Payout{}, err
	}
	commission, err := scaled.Div(bpsDenominator)
	if err != nil {
		return Payout{}, err
	}
	payout, err := pot.Sub(commission)
	if err != nil {
		return Payout{}, err
	}
	return Payout{Pot: pot, Commission: commission, Payout: payout}, nil
}
