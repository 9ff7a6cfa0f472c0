// Package connector defines the plugin contract for integrations and the
// registry that resolves connector configurations to plugin instances.
//
// # Plugin contract
//
// Every integration implements Plugin, whether it runs in-process ("native")
// or is proxied to an out-of-process server ("external"). The contract is
// fail-soft on the listing side: a connector that cannot list tools or
// resources returns an empty slice so one misbehaving integration never
// hides its siblings. Execution results, including domain failures, are
// text payloads; hard errors are converted to error text at the dispatcher
// boundary.
//
// # Naming convention
//
// Tool names are prefixed with "{connector_type}_" and resource URIs use the
// connector type as their scheme. The dispatcher routes on these prefixes,
// so plugins must emit them; the external adapter normalizes names from
// servers that emit bare local names.
//
// # Registration
//
// The registry is an explicitly constructed dependency. Native plugins are
// registered by gateway startup code before traffic begins; there are no
// import-time side effects. Last registration wins, which lets tests install
// doubles over the startup set.
package connector
