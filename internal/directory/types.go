// Package directory maintains the mapping between subgraph deployments and
// the subgraphs that reference them, refreshed periodically from the network
// subgraph and published to readers as immutable snapshots.
package directory

// Address is a fixed-length account address as reported by the network
// subgraph. Opaque to this package.
type Address string

// DeploymentID is the content-hash identifier of a subgraph manifest stored
// in decentralized storage (the IPFS hash of the manifest). Distinct
// accounts can publish identical manifests, so a single DeploymentID may be
// referenced by multiple subgraphs.
type DeploymentID string

// SubgraphID identifies a subgraph as assigned by the on-chain registry.
// It is derived from the owning account and a per-account sequence number
// and maps to at most one Subgraph.
type SubgraphID string

// GraphAccount is a publishing identity.
type GraphAccount struct {
	ID                 Address `json:"id"`
	Image              *string `json:"image"`
	DefaultDisplayName *string `json:"defaultDisplayName"`
}

// Subgraph is a named, owned entity pointing at one active deployment
// version at fetch time.
type Subgraph struct {
	ID          SubgraphID   `json:"id"`
	Owner       GraphAccount `json:"owner"`
	DisplayName *string      `json:"displayName"`
	Image       *string      `json:"image"`
}

// SubgraphVersion wraps one Subgraph inside a deployment's version list.
type SubgraphVersion struct {
	Subgraph Subgraph `json:"subgraph"`
}

// DeploymentRecord is one raw record returned by the network subgraph.
// ID is the entity identifier used as the pagination cursor; IpfsHash is
// the deployment's content hash. Versions are ordered ascending by version
// and filtered upstream to active, schema-version-2 subgraphs.
type DeploymentRecord struct {
	ID       string            `json:"id"`
	IpfsHash DeploymentID      `json:"ipfsHash"`
	Versions []SubgraphVersion `json:"versions"`
}
