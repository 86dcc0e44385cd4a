package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xelth-com/eckwmsfield/internal/models"
	"github.com/xelth-com/eckwmsfield/internal/sync"
	"github.com/xelth-com/eckwmsfield/internal/testserver"
)

var syncCmd = &cobra.Command{
	Use:   "sync [kind]",
	Short: "Run one synchronization cycle now",
	Long: `Reconcile the local store with the server once.

Without an argument every enabled kind is synchronized in dependency order.
Kinds: ` + kindList(),
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		a.monitor.Check(ctx)

		var res sync.Result
		if len(args) == 1 {
			kind, err := models.ParseKind(args[0])
			if err != nil {
				return err
			}
			res = a.engine.SyncKind(ctx, kind)
		} else {
			res = a.engine.SyncAll(ctx)
		}

		printResult(res)
		if !res.Success {
			return errors.New(res.Message)
		}
		return nil
	},
}

func printResult(res sync.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tCREATED\tUPDATED\tDELETED\tCONFLICTS\tDOWNLOADED\tREFRESHED\tREMOVED\tERRORS")
	for _, k := range res.Kinds {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			k.Kind, k.Created, k.Updated, k.Deleted, k.Conflicts, k.Downloaded, k.Refreshed, k.Removed, len(k.Errors))
	}
	w.Flush()
	fmt.Printf("%s (%s)\n", res.Message, res.Duration.Round(time.Millisecond))
}

var (
	loginEmail    string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the server and store the credentials on the device",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if loginEmail == "" || loginPassword == "" {
			return errors.New("--email and --password are required")
		}
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.Login(ctx, loginEmail, loginPassword); err != nil {
			return err
		}
		fmt.Printf("Logged in as %s\n", a.session.Email())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.session.Logout(ctx)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, session and the last outcome per kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		online := a.monitor.Check(ctx)
		fmt.Printf("Server:        %s (online: %t)\n", a.cfg.ServerURL, online)
		if email := a.session.Email(); email != "" {
			fmt.Printf("Logged in as:  %s\n", email)
		} else {
			fmt.Println("Logged in as:  -")
		}
		if last := a.engine.LastSyncTime(); !last.IsZero() {
			fmt.Printf("Last sync:     %s\n", last.Local().Format(time.RFC3339))
		} else {
			fmt.Println("Last sync:     never")
		}

		meta, err := a.db.ListSyncMetadata(ctx)
		if err != nil {
			return err
		}
		if len(meta) == 0 {
			return nil
		}
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tSTATUS\tAT\tUPLOADED\tDOWNLOADED\tDELETED")
		for _, m := range meta {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n", m.Kind, m.Status,
				m.LastSyncAt.Local().Format(time.DateTime), m.Uploaded, m.Downloaded, m.Deleted)
		}
		return w.Flush()
	},
}

var listCmd = &cobra.Command{
	Use:   "list <kind>",
	Short: "List the active local records of a kind",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind, err := models.ParseKind(args[0])
		if err != nil {
			return err
		}
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.data.ListAny(ctx, kind)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPENDING")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%t\n", r.ID, r.Label, r.Pending || r.ID.IsLocal())
		}
		return w.Flush()
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <kind> <id>",
	Short: "Delete a local record; the deletion reaches the server on the next sync",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind, err := models.ParseKind(args[0])
		if err != nil {
			return err
		}
		id, err := models.ParseID(args[1])
		if err != nil {
			return err
		}
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		a.monitor.Check(ctx)
		return a.data.DeleteAny(ctx, kind, id)
	},
}

var (
	devAddr     string
	devEmail    string
	devPassword string
)

var devServerCmd = &cobra.Command{
	Use:    "devserver",
	Short:  "Run an in-memory server implementing the remote API",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := testserver.New()
		if err := srv.AddUser(devEmail, devPassword); err != nil {
			return err
		}
		server := &http.Server{Addr: devAddr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-cmd.Context().Done()
			server.Close()
		}()
		fmt.Printf("Development server on %s (user %s)\n", devAddr, devEmail)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func kindList() string {
	var names []string
	for _, k := range models.Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password")

	devServerCmd.Flags().StringVar(&devAddr, "addr", ":3210", "listen address")
	devServerCmd.Flags().StringVar(&devEmail, "email", "clerk@example.com", "account allowed to log in")
	devServerCmd.Flags().StringVar(&devPassword, "password", "field", "password of that account")
}
