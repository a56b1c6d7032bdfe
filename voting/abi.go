package voting

// ContractABI is the JSON interface of the deployed Voting contract.
const ContractABI = `[
  {"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"workflowStatus","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"getProposals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"tuple[]","components":[{"name":"description","type":"string"},{"name":"voteCount","type":"uint256"}]}]},
  {"type":"function","name":"getOneProposal","stateMutability":"view","inputs":[{"name":"_id","type":"uint256"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"description","type":"string"},{"name":"voteCount","type":"uint256"}]}]},
  {"type":"function","name":"getVoter","stateMutability":"view","inputs":[{"name":"_addr","type":"address"}],"outputs":[{"name":"","type":"tuple","components":[{"name":"isRegistered","type":"bool"},{"name":"hasVoted","type":"bool"},{"name":"votedProposalId","type":"uint256"}]}]},
  {"type":"function","name":"winningProposalID","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"addVoter","stateMutability":"nonpayable","inputs":[{"name":"_addr","type":"address"}],"outputs":[]},
  {"type":"function","name":"addProposal","stateMutability":"nonpayable","inputs":[{"name":"_desc","type":"string"}],"outputs":[]},
  {"type":"function","name":"setVote","stateMutability":"nonpayable","inputs":[{"name":"_id","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"startProposalsRegistering","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"endProposalsRegistering","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"startVotingSession","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"endVotingSession","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"tallyVotes","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"event","name":"WorkflowStatusChange","anonymous":false,"inputs":[{"name":"previousStatus","type":"uint8","indexed":false},{"name":"newStatus","type":"uint8","indexed":false}]},
  {"type":"event","name":"VoterRegistered","anonymous":false,"inputs":[{"name":"voterAddress","type":"address","indexed":false}]},
  {"type":"event","name":"ProposalRegistered","anonymous":false,"inputs":[{"name":"proposalId","type":"uint256","indexed":false}]},
  {"type":"event","name":"Voted","anonymous":false,"inputs":[{"name":"voter","type":"address","indexed":false},{"name":"proposalId","type":"uint256","indexed":false}]}
]`

// Event names emitted by the contract.
const (
	EventWorkflowStatusChange = "WorkflowStatusChange"
	EventVoterRegistered      = "VoterRegistered"
	EventProposalRegistered   = "ProposalRegistered"
	EventVoted                = "Voted"
)

// Write methods other than the phase transitions.
const (
	MethodAddVoter    = "addVoter"
	MethodAddProposal = "addProposal"
	MethodSetVote     = "setVote"
)
