package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/Kirill2402100/eth-alarm-bot-cloud-sub000/internal/util"
)

// OpenAlert formats the alert sent when a position opens.
func OpenAlert(symbol, side string, entry, stop, target, score, threshold float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 <b>%s %s</b>\n", escape(symbol), side)
	fmt.Fprintf(&b, "Entry: <code>%s</code>\n", util.FormatPrice(entry))
	fmt.Fprintf(&b, "SL: <code>%s</code> | TP: <code>%s</code>\n", util.FormatPrice(stop), util.FormatPrice(target))
	fmt.Fprintf(&b, "Score: %.2f (min %.2f)", score, threshold)
	return b.String()
}

// CloseAlert formats the alert sent when a position closes.
func CloseAlert(symbol, side, reason string, exit, pnl float64, held time.Duration) string {
	icon := "✅"
	if pnl < 0 {
		icon = "🛑"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s %s closed</b> (%s)\n", icon, escape(symbol), side, reason)
	fmt.Fprintf(&b, "Exit: <code>%s</code>\n", util.FormatPrice(exit))
	fmt.Fprintf(&b, "PnL: %+.2f USDT | Held: %s", pnl, held.Round(time.Second))
	return b.String()
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
