package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dkeye/Space/internal/domain"
)

var spacesCmd = &cobra.Command{
	Use:   "spaces",
	Short: "List the spaces of a server",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, flagServer+"/api/spaces", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("list spaces: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("list spaces: %s", resp.Status)
		}
		var spaces []domain.SpaceInfo
		if err := json.NewDecoder(resp.Body).Decode(&spaces); err != nil {
			return fmt.Errorf("decode spaces: %w", err)
		}
		fmt.Println(spacesTable(spaces))
		return nil
	},
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func spacesTable(spaces []domain.SpaceInfo) string {
	rows := make([][]string, 0, len(spaces))
	for _, s := range spaces {
		rows = append(rows, []string{
			string(s.Name),
			strconv.Itoa(s.Participants) + "/" + strconv.Itoa(s.Capacity),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Space", "Participants").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Render()
}

func init() {
	rootCmd.AddCommand(spacesCmd)
}
