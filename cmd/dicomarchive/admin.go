package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/caio-sobreiro/dicomarchive/model"
)

// parsePatient splits "ID" or "ID^^^ENTITY&UID&TYPE" into a patient ID and
// its issuer.
func parsePatient(s string) (string, model.Issuer) {
	id, issuer, ok := strings.Cut(s, "^^^")
	if !ok {
		return s, model.Issuer{}
	}
	parts := strings.SplitN(issuer, "&", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return id, model.Issuer{EntityID: parts[0], EntityUID: parts[1], EntityUIDType: parts[2]}
}

func mergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge PRIOR SURVIVOR",
		Short: "Merge the prior patient into the survivor",
		Long: `Moves every study of PRIOR to SURVIVOR and marks PRIOR as merged. Patients
are given as ID or ID^^^ENTITY&UID&TYPE.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			priorID, priorIssuer := parsePatient(args[0])
			prior, err := a.store.LookupPatient(ctx, priorID, priorIssuer)
			if err != nil {
				return err
			}
			survivorID, survivorIssuer := parsePatient(args[1])
			survivor, err := a.store.LookupPatient(ctx, survivorID, survivorIssuer)
			if err != nil {
				return err
			}
			return a.store.MergePatients(ctx, prior.PK, survivor.PK)
		},
	}
}

func permitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permit",
		Short: "Manage study permissions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "grant STUDY_UID ROLE ACTION",
		Short: "Allow ROLE to perform ACTION on a study",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.store.Grant(cmd.Context(), args[0], args[1], args[2])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "revoke STUDY_UID ROLE ACTION",
		Short: "Withdraw a grant",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			removed, err := a.store.Revoke(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no %s grant for %s on %s", args[2], args[1], args[0])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check STUDY_UID ACTION ROLE...",
		Short: "Tell whether any of the roles may perform ACTION",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ok, err := a.store.Check(cmd.Context(), args[0], args[2:], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s on %s is not permitted", args[1], args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "permitted")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list STUDY_UID",
		Short: "List the grants of a study",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			perms, err := a.store.Permissions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROLE\tACTION")
			for _, p := range perms {
				fmt.Fprintf(w, "%s\t%s\n", p.Role, p.Action)
			}
			return w.Flush()
		},
	})
	return cmd
}

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "delete patient|study|series|instance ID",
		Short:     "Delete an entity with everything below it",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"patient", "study", "series", "instance"},
		RunE: func(cmd *cobra.Command, args []string) error {
			keepFiles, _ := cmd.Flags().GetBool("keep-files")

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			var refs []model.FileRef
			switch args[0] {
			case "patient":
				id, issuer := parsePatient(args[1])
				p, err := a.store.LookupPatient(ctx, id, issuer)
				if err != nil {
					return err
				}
				refs, err = a.store.DeletePatient(ctx, p.PK)
				if err != nil {
					return err
				}
			case "study":
				refs, err = a.store.DeleteStudy(ctx, args[1])
			case "series":
				refs, err = a.store.DeleteSeries(ctx, args[1])
			case "instance":
				refs, err = a.store.DeleteInstance(ctx, args[1])
			default:
				return fmt.Errorf("unknown entity %q", args[0])
			}
			if err != nil {
				return err
			}

			removed := 0
			if !keepFiles {
				for _, ref := range refs {
					if err := a.committer.Remove(ref); err != nil {
						a.logger.WarnContext(ctx, "Failed to remove file", "path", ref.Path, "error", err)
						continue
					}
					removed++
				}
			}
			a.logger.InfoContext(ctx, "Deleted",
				"entity", args[0],
				"id", args[1],
				"file_refs", len(refs),
				"files_removed", removed)
			return nil
		},
	}
	cmd.Flags().Bool("keep-files", false, "Unregister the files but leave them on disk")
	return cmd
}
