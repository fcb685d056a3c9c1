package aggregate

import (
	"math/big"
	"strings"
	"time"

	"github.com/devblac/syt-bridge/internal/chain"
	"github.com/devblac/syt-bridge/internal/domain"
)

// Metrics is the display view of one debate's contract state.
type Metrics struct {
	Known        bool     `json:"known"`
	TotalVotes   *big.Int `json:"totalVotes"`
	YesPercent   int      `json:"yesPercent"`
	NoPercent    int      `json:"noPercent"`
	VoteFee      string   `json:"voteFee,omitempty"`
	YesPot       string   `json:"yesPot"`
	NoPot        string   `json:"noPot"`
	Finalized    bool     `json:"finalized"`
	VotingClosed bool     `json:"votingClosed"`
	EndTime      uint64   `json:"endTime,omitempty"`
}

// Derive computes display metrics at now. An unknown state yields zero totals
// and asserts neither a fee nor finalization.
func Derive(st *domain.DebateState, p *chain.Profile, now time.Time) Metrics {
	var (
		symbol   string
		decimals uint8 = 18
	)
	if p != nil {
		symbol, decimals = p.NativeSymbol, p.NativeDecimals
	}
	if st == nil {
		return Metrics{
			TotalVotes: new(big.Int),
			YesPot:     FormatAmount(nil, decimals, symbol),
			NoPot:      FormatAmount(nil, decimals, symbol),
		}
	}

	total := new(big.Int).Add(nz(st.YesCount), nz(st.NoCount))
	return Metrics{
		Known:        true,
		TotalVotes:   total,
		YesPercent:   Percent(st.YesCount, total),
		NoPercent:    Percent(st.NoCount, total),
		VoteFee:      FormatAmount(st.VoteFee, decimals, symbol),
		YesPot:       FormatAmount(st.YesPot, decimals, symbol),
		NoPot:        FormatAmount(st.NoPot, decimals, symbol),
		Finalized:    st.Finalized,
		VotingClosed: st.VotingClosed(now),
		EndTime:      st.EndTime,
	}
}

// Percent returns round(100*part/total), rounding halves up, or 0 when total
// is zero.
func Percent(part, total *big.Int) int {
	if total == nil || total.Sign() <= 0 {
		return 0
	}
	num := new(big.Int).Mul(nz(part), big.NewInt(200))
	num.Add(num, total)
	den := new(big.Int).Mul(total, big.NewInt(2))
	return int(num.Quo(num, den).Int64())
}

// FormatAmount renders amount/10^decimals exactly, without trailing
// fractional zeros or exponent notation, followed by the symbol.
func FormatAmount(amount *big.Int, decimals uint8, symbol string) string {
	v := nz(amount)
	neg := v.Sign() < 0
	abs := new(big.Int).Abs(v)

	base := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, base, new(big.Int))

	s := whole.String()
	if decimals > 0 && frac.Sign() > 0 {
		f := frac.String()
		f = strings.Repeat("0", int(decimals)-len(f)) + f
		s += "." + strings.TrimRight(f, "0")
	}
	if neg {
		s = "-" + s
	}
	if symbol == "" {
		return s
	}
	return s + " " + symbol
}

func nz(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
