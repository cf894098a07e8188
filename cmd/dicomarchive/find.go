package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/caio-sobreiro/dicomarchive/dicom"
	"github.com/caio-sobreiro/dicomarchive/query"
	"github.com/caio-sobreiro/dicomarchive/types"
)

func findCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find KEY[=VALUE]...",
		Short: "Query the archive the way a C-FIND SCP would",
		Long: `Runs a query and prints every match as a YAML document.

Keys are attribute keywords or tags. KEY=VALUE is a matching key and a bare
KEY only asks for the attribute to be returned:

  dicomarchive find -l STUDY PatientName='SMITH*' StudyDate=20240101- ModalitiesInStudy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			levelFlag, _ := cmd.Flags().GetString("level")
			calledAET, _ := cmd.Flags().GetString("called-aet")
			relational, _ := cmd.Flags().GetBool("relational")

			level, err := types.ParseQueryLevel(levelFlag)
			if err != nil {
				return err
			}
			keys, err := parseKeys(args)
			if err != nil {
				return err
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if calledAET == "" {
				calledAET = a.archive.AETitle
			}

			session, err := query.NewProvider(a.store, a.archive, a.logger).NewQuery(level, calledAET, relational)
			if err != nil {
				return err
			}
			defer session.Close()
			if err := session.Find(cmd.Context(), keys); err != nil {
				return err
			}
			if session.OptionalKeyNotSupported() {
				a.logger.WarnContext(cmd.Context(), "Some keys are not supported at this level and were ignored")
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			for {
				more, err := session.HasNext()
				if err != nil {
					return err
				}
				if !more {
					return nil
				}
				match, err := session.Next()
				if err == io.EOF {
					return nil
				}
				if err != nil {
					return err
				}
				if err := enc.Encode(toYAML(match)); err != nil {
					return err
				}
			}
		},
	}
	cmd.Flags().StringP("level", "l", "STUDY", "Query/Retrieve level: PATIENT, STUDY, SERIES or IMAGE")
	cmd.Flags().String("called-aet", "", "AE whose matching settings apply (default: the archive AE title)")
	cmd.Flags().Bool("relational", false, "Allow keys above the query level without unique keys")
	return cmd
}

func parseKeys(args []string) (*dicom.Dataset, error) {
	keys := dicom.NewDataset()
	for _, arg := range args {
		name, value, _ := strings.Cut(arg, "=")
		tag, err := dicom.ParseTag(name)
		if err != nil {
			return nil, err
		}
		vr := dicom.VROf(tag)
		if vr == dicom.VR_SQ {
			if value != "" {
				return nil, fmt.Errorf("%s: sequence keys cannot carry a value", name)
			}
			keys.AddItems(tag)
			continue
		}
		keys.AddElement(tag, vr, value)
	}
	return keys, nil
}

// toYAML renders ds keyed by attribute keyword. Sequences become lists of
// nested mappings.
func toYAML(ds *dicom.Dataset) *yaml.Node {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, tag := range ds.Tags() {
		el, _ := ds.GetElement(tag)
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: dicom.Keyword(tag)}
		var value *yaml.Node
		if el.VR == dicom.VR_SQ {
			value = &yaml.Node{Kind: yaml.SequenceNode}
			for _, item := range ds.GetItems(tag) {
				value.Content = append(value.Content, toYAML(item))
			}
		} else {
			value = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: scalar(el)}
		}
		node.Content = append(node.Content, key, value)
	}
	return node
}

func scalar(el *dicom.Element) string {
	switch v := el.Value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(v))
	case nil:
		return ""
	}
	return fmt.Sprint(el.Value)
}
