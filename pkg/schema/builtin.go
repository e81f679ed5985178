package schema

// Builtin schemas cover the four entity types with the fields the engine,
// hooks and exporter rely on. Deployments override them with YAML files via
// LoadDir; the builtins keep the service usable without any configuration.

func commonTopLevelFields() map[string]Field {
	return map[string]Field{
		"entityid":        {Type: TypeString, Required: true},
		"state":           {Type: TypeString, Enum: []string{"prodaccepted", "testaccepted"}, Default: "testaccepted"},
		"eid":             {Type: TypeNumber},
		"allowedall":      {Type: TypeBoolean, Default: true},
		"allowedEntities": {Type: TypeList, Default: []interface{}{}},
		"arp":             {Type: TypeMap},
		"metadataurl":     {Type: TypeString},
		"revisionnote":    {Type: TypeString},
		"notes":           {Type: TypeString},
		"manipulation":    {Type: TypeString},
		"type":            {Type: TypeString},
	}
}

func commonMetaDataFields() map[string]Field {
	return map[string]Field{
		"NameIDFormat":               {Type: TypeString},
		"SingleLogoutService_Binding":  {Type: TypeString},
		"SingleLogoutService_Location": {Type: TypeString},
		"redirect.sign":              {Type: TypeBoolean},
		"certData":                   {Type: TypeString},
		"certData2":                  {Type: TypeString},
		"certData3":                  {Type: TypeString},
		"logo:0:url":                 {Type: TypeString},
		"logo:0:height":              {Type: TypeNumber},
		"logo:0:width":               {Type: TypeNumber},
		"coin:institution_id":        {Type: TypeString},
		"coin:interfed_source":       {Type: TypeString},
		"coin:signature_method":      {Type: TypeString},
		"coin:exclude_from_push":     {Type: TypeBoolean},
		"coin:publish_in_edugain":    {Type: TypeBoolean},
		"coin:imported_from_edugain": {Type: TypeBoolean},
		"coin:additional_logging":    {Type: TypeBoolean},
		"coin:disable_scoping":       {Type: TypeBoolean},
	}
}

func commonPatternFields() map[string]Field {
	return map[string]Field{
		`^name:[a-z]{2}$`:                    {Type: TypeString},
		`^displayName:[a-z]{2}$`:             {Type: TypeString},
		`^description:[a-z]{2}$`:             {Type: TypeString},
		`^keywords:[a-z]{2}$`:                {Type: TypeString},
		`^url:[a-z]{2}$`:                     {Type: TypeString},
		`^OrganizationName:[a-z]{2}$`:        {Type: TypeString},
		`^OrganizationDisplayName:[a-z]{2}$`: {Type: TypeString},
		`^OrganizationURL:[a-z]{2}$`:         {Type: TypeString},
		`^contacts:[0-3]:(contactType|emailAddress|telephoneNumber|givenName|surName)$`: {Type: TypeString},
		`^NameIDFormats:[0-2]$`: {Type: TypeString},
	}
}

func merged(maps ...map[string]Field) map[string]Field {
	out := map[string]Field{}
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func builtinSchemas() []*Schema {
	spMetaData := merged(commonMetaDataFields(), map[string]Field{
		"coin:eula":                 {Type: TypeString},
		"coin:transparant_issuer":   {Type: TypeBoolean},
		"coin:trusted_proxy":        {Type: TypeBoolean},
		"coin:requesterid_required": {Type: TypeBoolean},
		"coin:no_consent_required":  {Type: TypeBoolean},
		"coin:sign_response":        {Type: TypeBoolean},
		"coin:dashboard_connect_option": {Type: TypeString},
	})
	spPatterns := merged(commonPatternFields(), map[string]Field{
		`^AssertionConsumerService:([0-9]|[12][0-9]):(Binding|Location|index)$`: {Type: TypeString},
	})

	idpMetaData := merged(commonMetaDataFields(), map[string]Field{
		"coin:guest_qualifier":        {Type: TypeString},
		"coin:schachomeorganization":  {Type: TypeString},
		"coin:hidden":                 {Type: TypeBoolean},
	})
	idpPatterns := merged(commonPatternFields(), map[string]Field{
		`^SingleSignOnService:[0-9]:(Binding|Location)$`:      {Type: TypeString},
		`^shibmd:scope:[0-9]:allowed$`:                        {Type: TypeString},
		`^shibmd:scope:[0-9]:regexp$`:                         {Type: TypeBoolean},
	})

	rpMetaData := merged(commonMetaDataFields(), map[string]Field{
		"secret":               {Type: TypeString},
		"grants":               {Type: TypeList},
		"scopes":               {Type: TypeList},
		"redirectUrls":         {Type: TypeList},
		"accessTokenValidity":  {Type: TypeNumber},
		"refreshTokenValidity": {Type: TypeNumber},
		"isResourceServer":     {Type: TypeBoolean},
	})

	idpFields := merged(commonTopLevelFields(), map[string]Field{
		"disableConsent": {Type: TypeList},
		"stepupEntities": {Type: TypeList},
		"mfaEntities":    {Type: TypeList},
	})

	return []*Schema{
		{Type: "saml20_sp", Fields: commonTopLevelFields(), MetaDataFields: spMetaData, PatternFields: spPatterns},
		{Type: "saml20_idp", Fields: idpFields, MetaDataFields: idpMetaData, PatternFields: idpPatterns},
		{Type: "oidc10_rp", Fields: commonTopLevelFields(), MetaDataFields: rpMetaData, PatternFields: commonPatternFields()},
		{Type: "single_tenant_template", Fields: commonTopLevelFields(), MetaDataFields: merged(commonMetaDataFields(), spMetaData), PatternFields: spPatterns},
	}
}
