package directory

// Snapshot is a fully-formed directory state derived from a single poll
// cycle's page set. It is immutable once built; a new cycle always produces
// a new Snapshot rather than mutating the previous one.
type Snapshot struct {
	deploymentToSubgraphs map[DeploymentID][]Subgraph
	subgraphIDToSubgraph  map[SubgraphID]Subgraph

	// duplicateSubgraphIDs counts SubgraphIDs that appeared more than once
	// across the page set. Not expected under the data model; surfaced so
	// the refresher can flag upstream data-quality issues.
	duplicateSubgraphIDs int
}

// NewSnapshot builds both derived maps from the same page set. Version order
// within a deployment is preserved as returned upstream. When the same
// SubgraphID appears under more than one record, the later record in
// iteration order wins.
func NewSnapshot(records []DeploymentRecord) *Snapshot {
	s := &Snapshot{
		deploymentToSubgraphs: make(map[DeploymentID][]Subgraph, len(records)),
		subgraphIDToSubgraph:  make(map[SubgraphID]Subgraph),
	}

	for _, record := range records {
		subgraphs := make([]Subgraph, 0, len(record.Versions))
		for _, version := range record.Versions {
			subgraphs = append(subgraphs, version.Subgraph)

			if _, seen := s.subgraphIDToSubgraph[version.Subgraph.ID]; seen {
				s.duplicateSubgraphIDs++
			}
			s.subgraphIDToSubgraph[version.Subgraph.ID] = version.Subgraph
		}
		s.deploymentToSubgraphs[record.IpfsHash] = subgraphs
	}

	return s
}

// DeploymentSubgraphs returns the subgraphs referencing the given deployment
// in upstream version order, or nil if the deployment is unknown.
func (s *Snapshot) DeploymentSubgraphs(id DeploymentID) []Subgraph {
	return s.deploymentToSubgraphs[id]
}

// Subgraph returns the subgraph with the given ID, if present.
func (s *Snapshot) Subgraph(id SubgraphID) (Subgraph, bool) {
	sg, ok := s.subgraphIDToSubgraph[id]
	return sg, ok
}

// DeploymentCount returns the number of distinct deployments in the snapshot.
func (s *Snapshot) DeploymentCount() int {
	return len(s.deploymentToSubgraphs)
}

// SubgraphCount returns the number of distinct subgraphs in the snapshot.
func (s *Snapshot) SubgraphCount() int {
	return len(s.subgraphIDToSubgraph)
}

// DuplicateSubgraphIDs returns how many SubgraphIDs were observed more than
// once while building this snapshot.
func (s *Snapshot) DuplicateSubgraphIDs() int {
	return s.duplicateSubgraphIDs
}
