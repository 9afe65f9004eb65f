package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/quill/internal/ports/primary"
	"github.com/example/quill/internal/wire"
)

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Manage versioned narrative content",
	Long: `Content lives in slots (world bible entries, chapter blueprints, scrolls,
sections and scenes). Each slot keeps every version; exactly one may be active.`,
}

var contentSlotCmd = &cobra.Command{
	Use:   "slot [plan-id] [kind] [key]",
	Short: "Create a slot, or return the existing one",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		container, _ := cmd.Flags().GetString("container")
		slot, err := wire.ContentService().EnsureSlot(NewContext(), primary.EnsureSlotRequest{
			PlanID:          args[0],
			Kind:            args[1],
			Key:             args[2],
			ContainerSlotID: container,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Slot %s (%s %s)\n", slot.ID, slot.Kind, slot.Key)
		return nil
	},
}

var contentSlotsCmd = &cobra.Command{
	Use:   "slots [plan-id]",
	Short: "List a plan's slots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		slots, err := wire.ContentService().ListSlots(NewContext(), args[0], kind)
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			fmt.Println("No slots found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tKEY\tCONTAINER")
		fmt.Fprintln(w, "--\t----\t---\t---------")
		for _, s := range slots {
			container := s.ContainerSlotID
			if container == "" {
				container = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Kind, s.Key, container)
		}
		return w.Flush()
	},
}

var contentAddCmd = &cobra.Command{
	Use:   "add [slot-id]",
	Short: "Add a version to a slot",
	Long:  "Add an inactive version. The body is read from --file, or stdin when --file is -.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		derived, _ := cmd.Flags().GetString("from")
		title, _ := cmd.Flags().GetString("title")
		activate, _ := cmd.Flags().GetBool("activate")

		body, err := readBody(file)
		if err != nil {
			return err
		}

		ctx := NewContext()
		svc := wire.ContentService()
		v, err := svc.CreateVersion(ctx, primary.CreateVersionRequest{
			SlotID:        args[0],
			Body:          body,
			DerivedFromID: derived,
			Metadata:      primary.ContentMetadata{Title: title, AuthorAgent: actorOf(ctx)},
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Created version %s (#%d, %d words)\n", v.ID, v.VersionIndex, v.Metadata.WordCount)

		if activate {
			if _, err := svc.Activate(ctx, v.ID); err != nil {
				return err
			}
			fmt.Printf("✓ Activated %s\n", v.ID)
		}
		return nil
	},
}

var contentVersionsCmd = &cobra.Command{
	Use:   "versions [slot-id]",
	Short: "List a slot's versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		versions, err := wire.ContentService().ListVersions(NewContext(), args[0])
		if err != nil {
			return err
		}
		printVersions(versions)
		return nil
	},
}

var contentShowCmd = &cobra.Command{
	Use:   "show [slot-id]",
	Short: "Print a slot's active version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		versionID, _ := cmd.Flags().GetString("version")
		ctx := NewContext()

		var (
			v   *primary.Version
			err error
		)
		if versionID != "" {
			v, err = wire.ContentService().GetVersion(ctx, versionID)
		} else {
			v, err = wire.ContentService().GetActive(ctx, args[0])
		}
		if err != nil {
			return err
		}

		if v.Metadata.Title != "" {
			fmt.Printf("# %s\n\n", v.Metadata.Title)
		}
		fmt.Println(v.Body)
		return nil
	},
}

var contentActivateCmd = &cobra.Command{
	Use:   "activate [version-id]",
	Short: "Make a version the slot's active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := wire.ContentService().Activate(NewContext(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s is now active for slot %s\n", v.ID, v.SlotID)
		return nil
	},
}

var contentBranchCmd = &cobra.Command{
	Use:   "branch [version-id] [tag]",
	Short: "Copy a version into a tagged alternative",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := wire.ContentService().Branch(NewContext(), primary.BranchRequest{
			VersionID: args[0],
			BranchTag: args[1],
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Branched %s into %s (%s)\n", args[0], v.ID, v.BranchTag)
		return nil
	},
}

var contentLineageCmd = &cobra.Command{
	Use:   "lineage [version-id]",
	Short: "Show a version and the versions it derives from",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		versions, err := wire.ContentService().Lineage(NewContext(), args[0])
		if err != nil {
			return err
		}
		printVersions(versions)
		return nil
	},
}

func printVersions(versions []*primary.Version) {
	if len(versions) == 0 {
		fmt.Println("No versions found")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\t#\tACTIVE\tFROM\tBRANCH\tWORDS\tCREATED")
	fmt.Fprintln(w, "--\t-\t------\t----\t------\t-----\t-------")
	for _, v := range versions {
		active := ""
		if v.IsActive {
			active = "✓"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%d\t%s\n",
			v.ID, v.VersionIndex, active, orDashStr(v.DerivedFromID), orDashStr(v.BranchTag),
			v.Metadata.WordCount, formatTimestamp(v.CreatedAt))
	}
	w.Flush()
}

func readBody(file string) (string, error) {
	switch file {
	case "":
		return "", fmt.Errorf("--file is required (use - for stdin)")
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	}
}

func orDashStr(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	contentSlotCmd.Flags().String("container", "", "Containing slot ID")
	contentSlotsCmd.Flags().String("kind", "", "Filter by slot kind")

	contentAddCmd.Flags().StringP("file", "f", "", "File holding the body (- for stdin)")
	contentAddCmd.Flags().String("from", "", "Version this one derives from")
	contentAddCmd.Flags().String("title", "", "Version title")
	contentAddCmd.Flags().Bool("activate", false, "Activate the new version")

	contentShowCmd.Flags().String("version", "", "Show this version instead of the active one")

	contentCmd.AddCommand(contentSlotCmd)
	contentCmd.AddCommand(contentSlotsCmd)
	contentCmd.AddCommand(contentAddCmd)
	contentCmd.AddCommand(contentVersionsCmd)
	contentCmd.AddCommand(contentShowCmd)
	contentCmd.AddCommand(contentActivateCmd)
	contentCmd.AddCommand(contentBranchCmd)
	contentCmd.AddCommand(contentLineageCmd)
}

// ContentCmd returns the content command
func ContentCmd() *cobra.Command {
	return contentCmd
}
