package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/symmetri/internal/organizations"
	"github.com/angelmondragon/symmetri/pkg/pagination"
)

func newAddOrganizationCommand(a *app) *cobra.Command {
	var input organizations.CreateInput
	cmd := &cobra.Command{
		Use:   "add-organization",
		Short: "Create an organization, or return the existing one with the same code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.addOrganization(cmd.Context(), cmd.OutOrStdout(), input)
		},
	}
	cmd.Flags().StringVarP(&input.Code, "code", "c", "", "organization code")
	cmd.Flags().StringVarP(&input.Name, "name", "n", "", "organization name")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newListOrganizationsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list-organizations",
		Short: "Print every organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.listOrganizations(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func (a *app) addOrganization(ctx context.Context, out io.Writer, input organizations.CreateInput) error {
	res := &resources{}
	defer res.Close()

	client, err := a.openDB(ctx, res)
	if err != nil {
		return err
	}
	svc, err := a.organizations(client)
	if err != nil {
		return err
	}

	org, err := svc.Create(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\t%s\t%s\n", org.ID, org.Code, org.Name)
	return nil
}

func (a *app) listOrganizations(ctx context.Context, out io.Writer) error {
	res := &resources{}
	defer res.Close()

	client, err := a.openDB(ctx, res)
	if err != nil {
		return err
	}
	svc, err := a.organizations(client)
	if err != nil {
		return err
	}

	params := pagination.Params{Limit: pagination.MaxLimit}
	for {
		page, err := svc.List(ctx, params)
		if err != nil {
			return err
		}
		for _, org := range page.Items {
			fmt.Fprintf(out, "%s\t%s\t%s\n", org.ID, org.Code, org.Name)
		}
		if page.Cursor == "" {
			return nil
		}
		params.Cursor = page.Cursor
	}
}
