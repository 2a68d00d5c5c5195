package permission

// Subject is a project resource category that permissions apply to.
type Subject string

const (
	SubjectRole                      Subject = "role"
	SubjectMember                    Subject = "member"
	SubjectGroups                    Subject = "groups"
	SubjectSettings                  Subject = "settings"
	SubjectIntegrations              Subject = "integrations"
	SubjectWebhooks                  Subject = "webhooks"
	SubjectServiceTokens             Subject = "service-tokens"
	SubjectEnvironments              Subject = "environments"
	SubjectTags                      Subject = "tags"
	SubjectAuditLogs                 Subject = "audit-logs"
	SubjectIPAllowList               Subject = "ip-allowlist"
	SubjectProject                   Subject = "workspace"
	SubjectSecrets                   Subject = "secrets"
	SubjectSecretFolders             Subject = "secret-folders"
	SubjectSecretImports             Subject = "secret-imports"
	SubjectDynamicSecrets            Subject = "dynamic-secrets"
	SubjectSecretRollback            Subject = "secret-rollback"
	SubjectSecretApproval            Subject = "secret-approval"
	SubjectSecretRotation            Subject = "secret-rotation"
	SubjectIdentity                  Subject = "identity"
	SubjectCertificateAuthorities    Subject = "certificate-authorities"
	SubjectCertificates              Subject = "certificates"
	SubjectCertificateTemplates      Subject = "certificate-templates"
	SubjectSSHCertificateAuthorities Subject = "ssh-certificate-authorities"
	SubjectSSHCertificates           Subject = "ssh-certificates"
	SubjectSSHCertificateTemplates   Subject = "ssh-certificate-templates"
	SubjectPkiAlerts                 Subject = "pki-alerts"
	SubjectPkiCollections            Subject = "pki-collections"
	SubjectKms                       Subject = "kms"
	SubjectCmek                      Subject = "cmek"
	SubjectSecretSyncs               Subject = "secret-syncs"
	SubjectKmip                      Subject = "kmip"
)

// Generic actions shared by most subjects.
const (
	ActionRead   = "read"
	ActionEdit   = "edit"
	ActionDelete = "delete"
	ActionCreate = "create"
)

// Secret actions. ActionRead on secrets grants describe and read value together.
const (
	SecretActionDescribe  = "describeSecret"
	SecretActionReadValue = "readValue"
)

const (
	DynamicSecretActionReadRootCredential   = "read-root-credential"
	DynamicSecretActionCreateRootCredential = "create-root-credential"
	DynamicSecretActionEditRootCredential   = "edit-root-credential"
	DynamicSecretActionDeleteRootCredential = "delete-root-credential"
	DynamicSecretActionLease                = "lease"
)

const (
	CmekActionEncrypt = "encrypt"
	CmekActionDecrypt = "decrypt"
)

const (
	SecretSyncActionSyncSecrets   = "sync-secrets"
	SecretSyncActionImportSecrets = "import-secrets"
	SecretSyncActionRemoveSecrets = "remove-secrets"
)

const (
	KmipActionReadClients                = "read-clients"
	KmipActionCreateClients              = "create-clients"
	KmipActionUpdateClients              = "update-clients"
	KmipActionDeleteClients              = "delete-clients"
	KmipActionGenerateClientCertificates = "generate-client-certificates"
)

// Canonical flag order of each action family. Form-to-rule conversion emits
// actions in this order.
var (
	generalFlags        = []string{ActionRead, ActionEdit, ActionDelete, ActionCreate}
	secretFlags         = []string{ActionRead, SecretActionDescribe, SecretActionReadValue, ActionEdit, ActionDelete, ActionCreate}
	cmekFlags           = []string{ActionRead, ActionEdit, ActionDelete, ActionCreate, CmekActionEncrypt, CmekActionDecrypt}
	secretRollbackFlags = []string{ActionRead, ActionCreate}
	projectFlags        = []string{ActionEdit, ActionDelete}
	dynamicSecretFlags  = []string{
		DynamicSecretActionReadRootCredential,
		DynamicSecretActionEditRootCredential,
		DynamicSecretActionDeleteRootCredential,
		DynamicSecretActionCreateRootCredential,
		DynamicSecretActionLease,
	}
	secretSyncFlags = []string{
		ActionRead, ActionCreate, ActionEdit, ActionDelete,
		SecretSyncActionSyncSecrets, SecretSyncActionImportSecrets, SecretSyncActionRemoveSecrets,
	}
	kmipFlags = []string{
		KmipActionReadClients, KmipActionCreateClients, KmipActionUpdateClients,
		KmipActionDeleteClients, KmipActionGenerateClientCertificates,
	}
)

// ActionLabel is one selectable action of a subject as shown to the user.
type ActionLabel struct {
	Label  string `json:"label"`
	Value  string `json:"value"`
	Legacy bool   `json:"legacy,omitempty"`
	Hint   string `json:"hint,omitempty"`
}

// SubjectSpec describes how a subject is represented in the role form.
type SubjectSpec struct {
	Subject Subject
	Title   string

	// Flags lists the boolean form fields of an entry, in canonical order.
	Flags []string

	// Conditional subjects keep one form entry per rule together with its
	// conditions and inversion. Other subjects are merged into a single entry.
	Conditional bool

	// LegacyDrop reports whether a converted entry must be discarded.
	LegacyDrop func(flags map[string]bool) bool

	Actions []ActionLabel
}

// HasFlag reports whether name is a form field of the subject.
func (s *SubjectSpec) HasFlag(name string) bool {
	for _, f := range s.Flags {
		if f == name {
			return true
		}
	}
	return false
}

// Older routes created folder permissions that only grant read. Those rules
// are hidden from the form so that saving a role drops them.
func folderReadOnly(flags map[string]bool) bool {
	return flags[ActionRead] && !flags[ActionEdit] && !flags[ActionDelete] && !flags[ActionCreate]
}

var standardActions = []ActionLabel{
	{Label: "Read", Value: ActionRead},
	{Label: "Create", Value: ActionCreate},
	{Label: "Modify", Value: ActionEdit},
	{Label: "Remove", Value: ActionDelete},
}

func general(sub Subject, title string) SubjectSpec {
	return SubjectSpec{Subject: sub, Title: title, Flags: generalFlags, Actions: standardActions}
}

// subjectTable is kept in display order.
var subjectTable = []SubjectSpec{
	{
		Subject:     SubjectSecrets,
		Title:       "Secrets",
		Flags:       secretFlags,
		Conditional: true,
		Actions: []ActionLabel{
			{
				Label:  "Read",
				Value:  ActionRead,
				Legacy: true,
				Hint:   "This is a legacy action and will be removed in the future. You should instead use the Describe Secret and Read Value actions.",
			},
			{Label: "Describe Secret", Value: SecretActionDescribe},
			{Label: "Read Value", Value: SecretActionReadValue},
			{Label: "Modify", Value: ActionEdit},
			{Label: "Remove", Value: ActionDelete},
			{Label: "Create", Value: ActionCreate},
		},
	},
	{
		Subject:     SubjectSecretFolders,
		Title:       "Secret Folders",
		Flags:       generalFlags,
		Conditional: true,
		LegacyDrop:  folderReadOnly,
		Actions: []ActionLabel{
			{Label: "Create", Value: ActionCreate},
			{Label: "Modify", Value: ActionEdit},
			{Label: "Remove", Value: ActionDelete},
		},
	},
	{
		Subject:     SubjectSecretImports,
		Title:       "Secret Imports",
		Flags:       generalFlags,
		Conditional: true,
		Actions:     standardActions,
	},
	{
		Subject:     SubjectDynamicSecrets,
		Title:       "Dynamic Secrets",
		Flags:       dynamicSecretFlags,
		Conditional: true,
		Actions: []ActionLabel{
			{Label: "Read root credentials", Value: DynamicSecretActionReadRootCredential},
			{Label: "Create root credentials", Value: DynamicSecretActionCreateRootCredential},
			{Label: "Modify root credentials", Value: DynamicSecretActionEditRootCredential},
			{Label: "Remove root credentials", Value: DynamicSecretActionDeleteRootCredential},
			{Label: "Manage Leases", Value: DynamicSecretActionLease},
		},
	},
	{
		Subject: SubjectCmek,
		Title:   "KMS",
		Flags:   cmekFlags,
		Actions: []ActionLabel{
			{Label: "Read", Value: ActionRead},
			{Label: "Create", Value: ActionCreate},
			{Label: "Modify", Value: ActionEdit},
			{Label: "Remove", Value: ActionDelete},
			{Label: "Encrypt", Value: CmekActionEncrypt},
			{Label: "Decrypt", Value: CmekActionDecrypt},
		},
	},
	{
		Subject: SubjectKms,
		Title:   "Project KMS Configuration",
		Flags:   generalFlags,
		Actions: []ActionLabel{{Label: "Modify", Value: ActionEdit}},
	},
	general(SubjectIntegrations, "Integrations"),
	{
		Subject: SubjectProject,
		Title:   "Project",
		Flags:   projectFlags,
		Actions: []ActionLabel{
			{Label: "Update project details", Value: ActionEdit},
			{Label: "Delete project", Value: ActionDelete},
		},
	},
	general(SubjectRole, "Roles"),
	{
		Subject: SubjectMember,
		Title:   "User Management",
		Flags:   generalFlags,
		Actions: []ActionLabel{
			{Label: "View all members", Value: ActionRead},
			{Label: "Invite members", Value: ActionCreate},
			{Label: "Edit members", Value: ActionEdit},
			{Label: "Remove members", Value: ActionDelete},
		},
	},
	{
		Subject:     SubjectIdentity,
		Title:       "Machine Identity Management",
		Flags:       generalFlags,
		Conditional: true,
		Actions: []ActionLabel{
			{Label: "Read", Value: ActionRead},
			{Label: "Add", Value: ActionCreate},
			{Label: "Modify", Value: ActionEdit},
			{Label: "Remove", Value: ActionDelete},
		},
	},
	general(SubjectGroups, "Group Management"),
	general(SubjectWebhooks, "Webhooks"),
	general(SubjectServiceTokens, "Service Tokens"),
	{
		Subject: SubjectSettings,
		Title:   "Settings",
		Flags:   generalFlags,
		Actions: []ActionLabel{
			{Label: "Read", Value: ActionRead},
			{Label: "Modify", Value: ActionEdit},
		},
	},
	general(SubjectEnvironments, "Environment Management"),
	general(SubjectTags, "Tags"),
	general(SubjectAuditLogs, "Audit Logs"),
	general(SubjectIPAllowList, "IP Allowlist"),
	general(SubjectCertificateAuthorities, "Certificate Authorities"),
	general(SubjectCertificates, "Certificates"),
	general(SubjectCertificateTemplates, "Certificate Templates"),
	general(SubjectSSHCertificateAuthorities, "SSH Certificate Authorities"),
	general(SubjectSSHCertificates, "SSH Certificates"),
	general(SubjectSSHCertificateTemplates, "SSH Certificate Templates"),
	general(SubjectPkiCollections, "PKI Collections"),
	general(SubjectPkiAlerts, "PKI Alerts"),
	general(SubjectSecretApproval, "Secret Protect policy"),
	general(SubjectSecretRotation, "Secret Rotation"),
	{
		Subject: SubjectSecretRollback,
		Title:   "Secret Rollback",
		Flags:   secretRollbackFlags,
		Actions: []ActionLabel{
			{Label: "Perform rollback", Value: ActionCreate},
			{Label: "View", Value: ActionRead},
		},
	},
	{
		Subject: SubjectSecretSyncs,
		Title:   "Secret Syncs",
		Flags:   secretSyncFlags,
		Actions: []ActionLabel{
			{Label: "Read", Value: ActionRead},
			{Label: "Create", Value: ActionCreate},
			{Label: "Modify", Value: ActionEdit},
			{Label: "Remove", Value: ActionDelete},
			{Label: "Trigger Syncs", Value: SecretSyncActionSyncSecrets},
			{Label: "Import Secrets from Destination", Value: SecretSyncActionImportSecrets},
			{Label: "Remove Secrets from Destination", Value: SecretSyncActionRemoveSecrets},
		},
	},
	{
		Subject: SubjectKmip,
		Title:   "KMIP",
		Flags:   kmipFlags,
		Actions: []ActionLabel{
			{Label: "Read clients", Value: KmipActionReadClients},
			{Label: "Create clients", Value: KmipActionCreateClients},
			{Label: "Modify clients", Value: KmipActionUpdateClients},
			{Label: "Delete clients", Value: KmipActionDeleteClients},
			{Label: "Generate client certificates", Value: KmipActionGenerateClientCertificates},
		},
	},
}

var subjectIndex = func() map[Subject]*SubjectSpec {
	idx := make(map[Subject]*SubjectSpec, len(subjectTable))
	for i := range subjectTable {
		idx[subjectTable[i].Subject] = &subjectTable[i]
	}
	return idx
}()

// Lookup returns the spec of a subject, or nil for unknown subjects.
func Lookup(sub Subject) *SubjectSpec {
	return subjectIndex[sub]
}

// IsConditional reports whether rules of the subject may carry conditions.
func IsConditional(sub Subject) bool {
	spec := Lookup(sub)
	return spec != nil && spec.Conditional
}

// TaxonomyEntry is one row of the permission taxonomy.
type TaxonomyEntry struct {
	Subject     Subject       `json:"subject"`
	Title       string        `json:"title"`
	Conditional bool          `json:"conditional"`
	Actions     []ActionLabel `json:"actions"`
}

// Taxonomy returns every subject with its title and selectable actions, in
// display order.
func Taxonomy() []TaxonomyEntry {
	out := make([]TaxonomyEntry, 0, len(subjectTable))
	for _, s := range subjectTable {
		actions := make([]ActionLabel, len(s.Actions))
		copy(actions, s.Actions)
		out = append(out, TaxonomyEntry{
			Subject:     s.Subject,
			Title:       s.Title,
			Conditional: s.Conditional,
			Actions:     actions,
		})
	}
	return out
}
