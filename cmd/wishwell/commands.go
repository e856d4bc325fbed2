package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"wishwell/internal/config"
)

// --- add ---

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a wish to a list",
	Long: `Add a wish to a list.

Examples:
  wishwell add --owner alice --url https://shop.example/widget
  wishwell add --owner alice --url https://shop.example/widget --message "Birthday idea"
  wishwell add --owner alice --name "Wool socks" --price 12`,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		link, _ := cmd.Flags().GetString("url")
		message, _ := cmd.Flags().GetString("message")
		listID, _ := cmd.Flags().GetString("list")
		name, _ := cmd.Flags().GetString("name")
		price, _ := cmd.Flags().GetString("price")
		image, _ := cmd.Flags().GetString("image")

		if owner == "" {
			return fmt.Errorf("--owner is required")
		}
		if link == "" && name == "" && price == "" && image == "" {
			return fmt.Errorf("either --url or at least one of --name/--price/--image is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ownerObj := map[string]any{"id": owner}

		var path string
		var req map[string]any
		if link != "" {
			path = "/wishes"
			req = map[string]any{
				"url":     link,
				"message": message,
				"list_id": listID,
				"owner":   ownerObj,
			}
		} else {
			path = "/wishes/manual"
			req = map[string]any{
				"name":    name,
				"price":   price,
				"image":   image,
				"list_id": listID,
				"owner":   ownerObj,
			}
		}

		resp, err := client.post(cmd.Context(), path, req)
		if err != nil {
			return err
		}

		var item struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Price string `json:"price"`
		}
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}

		printSuccess("Added %q (%s) — %s", item.Name, item.Price, item.ID)
		return nil
	},
}

func init() {
	addCmd.Flags().String("owner", "", "owner user id")
	addCmd.Flags().String("url", "", "product page URL to enrich from")
	addCmd.Flags().String("message", "", "note to use as the wish name")
	addCmd.Flags().String("list", "", "target list id (default: owner's default list)")
	addCmd.Flags().String("name", "", "item name (manual entry)")
	addCmd.Flags().String("price", "", "item price (manual entry)")
	addCmd.Flags().String("image", "", "item image URL (manual entry)")
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list <owner-id>",
	Short: "Show a user's wishlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/lists/"+url.PathEscape(args[0])+"/items")
		if err != nil {
			return err
		}

		var items []struct {
			ID               string `json:"id"`
			Name             string `json:"name"`
			Price            string `json:"price"`
			Link             string `json:"link"`
			EnrichmentStatus string `json:"enrichment_status"`
			ClaimedBy        string `json:"claimed_by"`
		}
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("No wishes found.")
			return nil
		}

		for _, it := range items {
			line := fmt.Sprintf("%s  %s  %s", colorize(colorCyan, shortID(it.ID)), it.Name, it.Price)
			if it.EnrichmentStatus == "pending" {
				line += colorize(colorYellow, "  (enriching)")
			}
			if it.ClaimedBy != "" {
				line += colorize(colorBold, "  [claimed]")
			}
			fmt.Println(line)
		}
		return nil
	},
}

// --- claim ---

var claimCmd = &cobra.Command{
	Use:   "claim <item-id>",
	Short: "Claim a friend's wish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		claimer, _ := cmd.Flags().GetString("claimer")
		if claimer == "" {
			return fmt.Errorf("--claimer is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/items/"+url.PathEscape(args[0])+"/claim", map[string]any{
			"claimer_id": claimer,
		})
		if err != nil {
			return err
		}

		var item struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}

		printSuccess("Claimed %q", item.Name)
		return nil
	},
}

func init() {
	claimCmd.Flags().String("claimer", "", "claiming user id")
}

// --- extract ---

var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Extract product metadata from a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/extract", map[string]any{"url": args[0]})
		if err != nil {
			return err
		}

		var result any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// --- friends ---

var friendsCmd = &cobra.Command{
	Use:   "friends",
	Short: "Manage friend connections",
}

var friendsAddCmd = &cobra.Command{
	Use:   "add <user-id> <friend-id>",
	Short: "Connect two users",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/friends", map[string]any{
			"user_id":   args[0],
			"friend_id": args[1],
		})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Added %s as a friend of %s", args[1], args[0])
		return nil
	},
}

var friendsListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List a user's friends",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/friends/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var ids []string
		if err := decodeJSON(resp, &ids); err != nil {
			return err
		}

		if len(ids) == 0 {
			fmt.Println("No friends found.")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	friendsCmd.AddCommand(friendsAddCmd)
	friendsCmd.AddCommand(friendsListCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
