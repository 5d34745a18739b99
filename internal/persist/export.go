package persist

import "github.com/projectns/projectns/internal/projects"

// Export converts the registry into rows: each project row followed by its reginfo,
// marks, contacts, channel namespaces and cloak namespaces.
func Export(reg *projects.Registry) []Row {
	return ExportDrafts(reg.Drafts())
}

// ExportDrafts converts already captured project state into rows.
func ExportDrafts(drafts []projects.Draft) []Row {
	var rows []Row
	for _, d := range drafts {
		rows = append(rows, ProjectRow{
			Name:             d.Name,
			OpenRegistration: d.OpenRegistration,
			CreatedAt:        d.CreatedAt,
			Creator:          d.Creator,
			LastMark:         d.LastMark,
		})
		if d.RegInfo != "" {
			rows = append(rows, RegInfoRow{ProjectName: d.Name, Text: d.RegInfo})
		}
		for _, m := range d.Marks {
			rows = append(rows, MarkRow{
				ProjectName: d.Name,
				Number:      m.Number,
				Time:        m.Time,
				SetterID:    m.SetterID,
				SetterName:  m.SetterName,
				Text:        m.Text,
			})
		}
		for _, c := range d.Contacts {
			rows = append(rows, ContactRow{
				ProjectName: d.Name,
				Account:     c.Account.Name,
				Visible:     c.Visible,
				Secondary:   c.Secondary,
			})
		}
		for _, ns := range d.ChannelNamespaces {
			rows = append(rows, ChannelNSRow{ProjectName: d.Name, Namespace: ns})
		}
		for _, ns := range d.CloakNamespaces {
			rows = append(rows, CloakNSRow{ProjectName: d.Name, Namespace: ns})
		}
	}
	return rows
}
