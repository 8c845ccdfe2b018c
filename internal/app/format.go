package app

import (
	"fmt"
	"strings"

	"github.com/Kalifa21/the-watcher/clients/polymarket"
	"github.com/Kalifa21/the-watcher/clients/telegram"
	"github.com/dustin/go-humanize"
)

// maxRatioDisplay caps the rendered buy-pressure ratio; anything above
// reads as "MAX" since the precise multiple stops being informative.
const maxRatioDisplay = 100.0

// FormatUSD renders a dollar amount with thousands separators and no
// decimals.
func FormatUSD(amount float64) string {
	return "$" + humanize.CommafWithDigits(amount, 0)
}

// FormatRatio renders the buy/sell dominance to one decimal place,
// capped as "MAX" above 100x.
func FormatRatio(ratio float64) string {
	if ratio > maxRatioDisplay {
		return "MAX"
	}
	return fmt.Sprintf("%.1fx", ratio)
}

// MarketURL builds a deep link from the market slug, falling back to a
// market-id link when the slug is absent.
func MarketURL(slug, marketID string) string {
	if slug != "" {
		return "https://polymarket.com/event/" + slug
	}
	return "https://polymarket.com/market/" + marketID
}

// signalHeading returns the emoji title line for a signal kind.
func signalHeading(kind SignalKind) string {
	switch kind {
	case SignalWolfPack:
		return "🐺 WOLF PACK DETECTED"
	case SignalVolumeSurge:
		return "📈 VOLUME SURGE"
	default:
		return "🔔 SIGNAL"
	}
}

// FormatSignal renders a signal into Telegram Markdown alert text. Pure;
// dispatch is a separate step.
func FormatSignal(sig Signal) string {
	var b strings.Builder

	fmt.Fprintf(&b, "*%s*\n\n", signalHeading(sig.Kind))
	fmt.Fprintf(&b, "*%s*\n", telegram.EscapeMarkdown(nz(sig.MarketName, sig.MarketID)))
	if sig.Outcome != "" {
		fmt.Fprintf(&b, "Outcome: %s\n", telegram.EscapeMarkdown(sig.Outcome))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "💰 Buy volume: %s\n", FormatUSD(sig.BuyVolume))
	fmt.Fprintf(&b, "👥 Unique buyers: %d\n", sig.UniqueBuyers)
	fmt.Fprintf(&b, "📊 Buy pressure: %s\n", FormatRatio(sig.Ratio))
	if sig.SellVolume > 0 {
		fmt.Fprintf(&b, "📉 Sell volume: %s\n", FormatUSD(sig.SellVolume))
	}

	fmt.Fprintf(&b, "\n🔗 %s", MarketURL(sig.MarketSlug, sig.MarketID))

	return b.String()
}

// FormatWalletAlert renders a watched wallet's new trade into alert
// text for its owning recipient.
func FormatWalletAlert(name, address string, act *polymarket.Activity) string {
	var b strings.Builder

	b.WriteString("👀 *WALLET ACTIVITY*\n\n")
	fmt.Fprintf(&b, "*%s* (`%s`)\n", telegram.EscapeMarkdown(nz(name, "Unnamed wallet")), telegram.ShortAddress(address))

	usd := act.GetUsdcSize()
	if usd == 0 {
		usd = act.GetSize() * act.GetPrice()
	}
	side := strings.ToUpper(nz(act.Side, "TRADE"))
	if act.Outcome != "" {
		fmt.Fprintf(&b, "%s %s for %s\n", side, telegram.EscapeMarkdown(act.Outcome), FormatUSD(usd))
	} else {
		fmt.Fprintf(&b, "%s for %s\n", side, FormatUSD(usd))
	}

	if act.Title != "" {
		fmt.Fprintf(&b, "*%s*\n", telegram.EscapeMarkdown(act.Title))
	}

	fmt.Fprintf(&b, "\n🔗 %s", MarketURL(act.Slug, act.ConditionID))

	return b.String()
}
