package ui

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// PeerRow is one entry of the peers table: an online user from the relay's
// presence list or a host discovered on the LAN.
type PeerRow struct {
	Name string
	ID   string
	Mode string
	Addr string
}

// RenderPeerTable prints the peers table to stdout.
func RenderPeerTable(rows []PeerRow) {
	if len(rows) == 0 {
		fmt.Println(MutedStyle.Render("Nobody is around right now"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgHiGreen, text.Bold}
	t.AppendHeader(table.Row{"#", "Name", "ID", "Mode", "Address"})
	for i, r := range rows {
		addr := r.Addr
		if addr == "" {
			addr = "via relay"
		}
		t.AppendRow(table.Row{i + 1, r.Name, r.ID, ModeBadge(r.Mode), addr})
	}
	t.Render()
}

// RoomInfo renders the created-room banner with the code to share.
type RoomInfo struct {
	Code string
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Code:  %s\n\nShare the code; the session starts when your peer joins.",
		IconRoom,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.Code),
	)
	return SuccessBoxStyle.Render(content)
}

func RenderRoomInfo(code string) {
	fmt.Println((&RoomInfo{Code: code}).View())
}
