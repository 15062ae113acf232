package evm

// marketplaceABI is the application binary interface of the marketplace
// contract. Read methods return the full entity structs (including the
// token metadata the contract records at listing time); write methods
// emit one event per state change carrying the affected entity id as the
// first indexed topic.
const marketplaceABI = `[
  {"type":"function","name":"marketplaceFee","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"listingCounter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"offerCounter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"paused","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getListing","stateMutability":"view",
   "inputs":[{"name":"listingId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"id","type":"uint256"},{"name":"seller","type":"address"},
     {"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},
     {"name":"price","type":"uint256"},{"name":"active","type":"bool"},
     {"name":"createdAt","type":"uint256"},{"name":"name","type":"string"},
     {"name":"collection","type":"string"},{"name":"category","type":"string"},
     {"name":"imageUrl","type":"string"}]}]},
  {"type":"function","name":"getAuction","stateMutability":"view",
   "inputs":[{"name":"auctionId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"id","type":"uint256"},{"name":"seller","type":"address"},
     {"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},
     {"name":"startingPrice","type":"uint256"},{"name":"currentBid","type":"uint256"},
     {"name":"highBidder","type":"address"},{"name":"endTime","type":"uint256"},
     {"name":"settled","type":"bool"},{"name":"name","type":"string"},
     {"name":"collection","type":"string"},{"name":"category","type":"string"},
     {"name":"imageUrl","type":"string"}]}]},
  {"type":"function","name":"getOffer","stateMutability":"view",
   "inputs":[{"name":"offerId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"id","type":"uint256"},{"name":"buyer","type":"address"},
     {"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},
     {"name":"amount","type":"uint256"},{"name":"expiresAt","type":"uint256"},
     {"name":"status","type":"uint8"}]}]},
  {"type":"function","name":"getActiveListings","stateMutability":"view",
   "inputs":[{"name":"offset","type":"uint256"},{"name":"limit","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple[]","components":[
     {"name":"id","type":"uint256"},{"name":"seller","type":"address"},
     {"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},
     {"name":"price","type":"uint256"},{"name":"active","type":"bool"},
     {"name":"createdAt","type":"uint256"},{"name":"name","type":"string"},
     {"name":"collection","type":"string"},{"name":"category","type":"string"},
     {"name":"imageUrl","type":"string"}]}]},
  {"type":"function","name":"getActiveAuctions","stateMutability":"view",
   "inputs":[{"name":"offset","type":"uint256"},{"name":"limit","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple[]","components":[
     {"name":"id","type":"uint256"},{"name":"seller","type":"address"},
     {"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},
     {"name":"startingPrice","type":"uint256"},{"name":"currentBid","type":"uint256"},
     {"name":"highBidder","type":"address"},{"name":"endTime","type":"uint256"},
     {"name":"settled","type":"bool"},{"name":"name","type":"string"},
     {"name":"collection","type":"string"},{"name":"category","type":"string"},
     {"name":"imageUrl","type":"string"}]}]},
  {"type":"function","name":"getUserListings","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"","type":"tuple[]","components":[
     {"name":"id","type":"uint256"},{"name":"seller","type":"address"},
     {"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},
     {"name":"price","type":"uint256"},{"name":"active","type":"bool"},
     {"name":"createdAt","type":"uint256"},{"name":"name","type":"string"},
     {"name":"collection","type":"string"},{"name":"category","type":"string"},
     {"name":"imageUrl","type":"string"}]}]},
  {"type":"function","name":"getOffersForNFT","stateMutability":"view",
   "inputs":[{"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple[]","components":[
     {"name":"id","type":"uint256"},{"name":"buyer","type":"address"},
     {"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},
     {"name":"amount","type":"uint256"},{"name":"expiresAt","type":"uint256"},
     {"name":"status","type":"uint8"}]}]},
  {"type":"function","name":"createListing","stateMutability":"nonpayable",
   "inputs":[{"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelListing","stateMutability":"nonpayable",
   "inputs":[{"name":"listingId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"purchaseListing","stateMutability":"payable",
   "inputs":[{"name":"listingId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"createAuction","stateMutability":"nonpayable",
   "inputs":[{"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"startingPrice","type":"uint256"},{"name":"duration","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"placeBid","stateMutability":"payable",
   "inputs":[{"name":"auctionId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"endAuction","stateMutability":"nonpayable",
   "inputs":[{"name":"auctionId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"makeOffer","stateMutability":"payable",
   "inputs":[{"name":"nftContract","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"expiry","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"acceptOffer","stateMutability":"nonpayable",
   "inputs":[{"name":"offerId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelOffer","stateMutability":"nonpayable",
   "inputs":[{"name":"offerId","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"ListingCreated","inputs":[{"name":"listingId","type":"uint256","indexed":true},{"name":"seller","type":"address","indexed":true},{"name":"price","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"ListingCancelled","inputs":[{"name":"listingId","type":"uint256","indexed":true}],"anonymous":false},
  {"type":"event","name":"ListingPurchased","inputs":[{"name":"listingId","type":"uint256","indexed":true},{"name":"buyer","type":"address","indexed":true},{"name":"price","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"AuctionCreated","inputs":[{"name":"auctionId","type":"uint256","indexed":true},{"name":"seller","type":"address","indexed":true},{"name":"endTime","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"BidPlaced","inputs":[{"name":"auctionId","type":"uint256","indexed":true},{"name":"bidder","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"AuctionEnded","inputs":[{"name":"auctionId","type":"uint256","indexed":true},{"name":"winner","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"OfferCreated","inputs":[{"name":"offerId","type":"uint256","indexed":true},{"name":"buyer","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"OfferAccepted","inputs":[{"name":"offerId","type":"uint256","indexed":true}],"anonymous":false},
  {"type":"event","name":"OfferCancelled","inputs":[{"name":"offerId","type":"uint256","indexed":true}],"anonymous":false}
]`
