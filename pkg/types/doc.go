/*
Package types defines the core data structures shared across the hangar
control plane: Project, ProjectParticipant, Database, and the container
state/metrics types the runtime adapter and event plane pass around.

These are plain data types with no behavior; the invariants that govern
them (one project and one database per owner, a participant never equal
to the owner, a volume existing iff PersistentVolumePath is set) are
enforced by the store and orchestrator packages, not here.

# Types

  - Project: one tenant deployment — owner, container name, source
    (direct image or GitHub repo), deployed image tag/digest, encrypted
    env vars, optional persistent volume.
  - ProjectParticipant: grants a non-owner user access to a project.
  - Database: a tenant-server database provisioned for a project owner.
  - ContainerState: the runtime's reported container lifecycle state.
  - ContainerMetrics: a live resource sample, streamed but never stored.
*/
package types
